package chat

import (
	stderrors "errors"
	"fmt"
	"nexchat/errors"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// FrameValidator checks inbound frames before they reach the runtime.
type FrameValidator struct {
	validate         *validator.Validate
	maxContentLength int
}

func NewFrameValidator(maxContentLength int) *FrameValidator {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &FrameValidator{validate: v, maxContentLength: maxContentLength}
}

// Validate turns a frame into a command for the given room.
// Every failure wraps errors.ErrValidation.
func (v *FrameValidator) Validate(room RoomID, frame InboundFrame) (PostMessageCommand, error) {
	if err := v.validate.Struct(frame); err != nil {
		return PostMessageCommand{}, fmt.Errorf("%w: %s", errors.ErrValidation, describe(err))
	}
	if v.maxContentLength > 0 && utf8.RuneCountInString(frame.Text) > v.maxContentLength {
		return PostMessageCommand{}, fmt.Errorf("%w: text exceeds %d characters", errors.ErrValidation, v.maxContentLength)
	}
	messageType := MessageType(frame.MessageType)
	if messageType == "" {
		messageType = TextMessage
	}
	return PostMessageCommand{
		Room:        room,
		SenderID:    strings.TrimSpace(frame.SenderID),
		SenderName:  strings.TrimSpace(frame.Sender),
		Text:        frame.Text,
		MessageType: messageType,
		MediaURL:    frame.MediaURL,
		ReceiverID:  frame.ReceiverID,
	}, nil
}

func describe(err error) string {
	var fieldErrors validator.ValidationErrors
	if !stderrors.As(err, &fieldErrors) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, ", ")
}
