package models

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/dbx"
)

// FieldSeparator joins note fields in the flds column.
const FieldSeparator = "\x1f"

// Note is one notes row. Fields are stored joined by the 0x1f unit
// separator; tags are stored space delimited with a leading and
// trailing space so SQL substring matches stay cheap.
type Note struct {
	Id     int64
	Guid   string
	Mid    int64
	Mod    int64
	Usn    int
	Tags   []string
	Fields []string
	Flags  int
	Data   string
}

// NewNote returns an unsaved note for the given note type with a fresh
// globally unique id.
func NewNote(mid int64) *Note {
	return &Note{
		Guid: uuid.NewString(),
		Mid:  mid,
		Data: "",
	}
}

// LoadNote reads the note with the given id.
func LoadNote(ctx context.Context, db dbx.DBTX, id int64) (*Note, error) {
	n := &Note{}
	var tags, flds string
	err := db.QueryRowContext(ctx,
		"select id, guid, mid, mod, usn, tags, flds, flags, data from notes where id = ?",
		id).Scan(&n.Id, &n.Guid, &n.Mid, &n.Mod, &n.Usn, &tags, &flds, &n.Flags, &n.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load note %d: %w", id, err)
	}
	n.Tags = SplitTags(tags)
	n.Fields = strings.Split(flds, FieldSeparator)
	return n, nil
}

// Flush writes the full row back, stamping mod and usn and refreshing
// the sort field and first-field checksum.
func (n *Note) Flush(ctx context.Context, db dbx.DBTX, usn int) error {
	n.Mod = common.IntTime()
	n.Usn = usn
	var first string
	if len(n.Fields) > 0 {
		first = n.Fields[0]
	}
	_, err := db.ExecContext(ctx,
		"insert or replace into notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data) values (?,?,?,?,?,?,?,?,?,?,?)",
		n.Id, n.Guid, n.Mid, n.Mod, n.Usn, JoinTags(n.Tags),
		strings.Join(n.Fields, FieldSeparator), first, FieldChecksum(first),
		n.Flags, n.Data)
	if err != nil {
		return fmt.Errorf("failed to flush note %d: %w", n.Id, err)
	}
	return nil
}

// HasTag reports whether the note carries tag, ignoring case.
func (n *Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddTag appends tag unless an equivalent one is already present.
func (n *Note) AddTag(tag string) {
	if n.HasTag(tag) {
		return
	}
	n.Tags = append(n.Tags, tag)
}

// DelTag removes every tag equal to the given one, ignoring case.
func (n *Note) DelTag(tag string) {
	kept := n.Tags[:0]
	for _, t := range n.Tags {
		if !strings.EqualFold(t, tag) {
			kept = append(kept, t)
		}
	}
	n.Tags = kept
}

// JoinTags renders tags in canonical stored form: space separated with
// a leading and trailing space, or empty when there are none.
func JoinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}

// SplitTags parses the stored form back into a list. Ideographic
// spaces count as separators.
func SplitTags(s string) []string {
	return strings.Fields(strings.ReplaceAll(s, "　", " "))
}

// FieldChecksum returns the integer value of the first 8 hex digits of
// the sha1 of data. Stored per note for duplicate detection; not a
// security boundary.
func FieldChecksum(data string) int64 {
	sum := sha1.Sum([]byte(data))
	v, _ := strconv.ParseInt(hex.EncodeToString(sum[:])[:8], 16, 64)
	return v
}
