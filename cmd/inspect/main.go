// Command inspect prints the messages stored in a badger directory.
// With -room it lists one room oldest first, otherwise it counts messages per room.
package main

import (
	"flag"
	"fmt"
	"log"
	"nexchat/domain/chat"
	"nexchat/infrastructure/storage"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	room := flag.String("room", "", "Room to list, every room is counted when empty")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := newTable()
	if *room == "" {
		err = countRooms(db, table)
	} else {
		err = listRoom(db, chat.RoomID(*room), table)
	}
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func listRoom(db *badger.DB, room chat.RoomID, table *tablewriter.Table) error {
	table.SetHeader([]string{"Seq", "Time", "Sender", "Type", "Status", "Text"})
	prefix := storage.KeyPrefix(room)
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				m, err := storage.DecodeMessage(v)
				if err != nil {
					fmt.Printf("Error decoding key %s: %v\n", string(item.Key()), err)
					return nil
				}
				table.Append([]string{
					strconv.FormatUint(m.Seq, 10),
					m.At.Format("2006-01-02 15:04:05"),
					m.AuthorName + " (" + m.Author + ")",
					m.MessageType,
					m.Status,
					truncate(m.Content, 80),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func countRooms(db *badger.DB, table *tablewriter.Table) error {
	table.SetHeader([]string{"Room", "Kind", "Messages", "Last seq"})
	type roomCount struct {
		messages int
		lastSeq  uint64
	}
	counts := make(map[chat.RoomID]*roomCount)

	prefix := storage.KeyPrefix("")
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if !storage.IsMessageKey(item.Key()) {
				continue
			}
			err := item.Value(func(v []byte) error {
				m, err := storage.DecodeMessage(v)
				if err != nil {
					return nil
				}
				c, ok := counts[m.Room]
				if !ok {
					c = &roomCount{}
					counts[m.Room] = c
				}
				c.messages++
				c.lastSeq = max(c.lastSeq, m.Seq)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	rooms := make([]chat.RoomID, 0, len(counts))
	for room := range counts {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	for _, room := range rooms {
		kind := "public"
		if room.IsDirect() {
			kind = "direct"
		}
		c := counts[room]
		table.Append([]string{string(room), kind, strconv.Itoa(c.messages), strconv.FormatUint(c.lastSeq, 10)})
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
