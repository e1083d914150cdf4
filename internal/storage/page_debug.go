package storage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"

	"github.com/novakernel/bufkernel/internal/storage/common"
)

func utf8Preview(b []byte) string {
	if !utf8.Valid(b) {
		return ""
	}
	var buf bytes.Buffer
	for _, r := range string(b) {
		if unicode.IsPrint(r) && r != '\n' && r != '\r' && r != '\t' {
			buf.WriteRune(r)
		} else {
			buf.WriteByte('.')
		}
	}
	return buf.String()
}

func asciiPreview(b []byte) string {
	var buf bytes.Buffer
	for _, c := range b {
		r := rune(c)
		if unicode.IsPrint(r) && r != '\n' && r != '\r' && r != '\t' {
			buf.WriteRune(r)
		} else {
			buf.WriteByte('.')
		}
	}
	return buf.String()
}

// Dump prints header, slot directory, and record previews to w.
func (p *SlottedPage) Dump(w io.Writer) {
	fmt.Fprintf(w, "=== SlottedPage Dump ===\n")
	fmt.Fprintf(w, "curPage=%d prevPage=%d nextPage=%d\n", p.curPage(), p.prevPage(), p.nextPage())
	fmt.Fprintf(w, "slotCnt=%d usedPtr=%d freeSpace=%d availableSpace=%d\n",
		p.slotCnt(), p.usedPtr(), p.freeSpace(), p.AvailableSpace())

	fmt.Fprintln(w, "\n-- Slots --")
	cnt := int(p.slotCnt())
	if cnt == 0 {
		fmt.Fprintln(w, "(none)")
	}
	for i := 0; i < cnt; i++ {
		s := p.slotAt(i)
		if s.Length == common.EmptySlot {
			fmt.Fprintf(w, "[%d] TOMBSTONE\n", i)
			continue
		}
		fmt.Fprintf(w, "[%d] offset=%d length=%d\n", i, s.Offset, s.Length)
	}

	fmt.Fprintln(w, "\n-- Records (preview) --")
	const maxPreview = 32
	for i := 0; i < cnt; i++ {
		rid := common.RID{PageNo: p.curPage(), SlotNo: int32(i)}
		rec, err := p.GetRecord(rid)
		if err != nil {
			continue
		}
		preview := rec
		if len(preview) > maxPreview {
			preview = preview[:maxPreview]
		}
		fmt.Fprintf(w, "[%d] len=%d hex=%s", i, len(rec), hex.EncodeToString(preview))
		if s := utf8Preview(preview); s != "" {
			fmt.Fprintf(w, " utf8=%q", s)
		} else {
			fmt.Fprintf(w, " ascii=%q", asciiPreview(preview))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== End Dump ===")
}

// DumpString is Dump rendered to a string.
func (p *SlottedPage) DumpString() string {
	var b bytes.Buffer
	p.Dump(&b)
	return b.String()
}
