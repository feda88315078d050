package event

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Render writes the event as a single diagnostic line, without a trailing
// newline. The field order and labels are normative: downstream tooling
// parses this format, so changes here are breaking.
func (ev *AuditEvent) Render(w io.Writer) error {
	_, err := io.WriteString(w, ev.String())
	return err
}

// String renders the event line. Every populated field appears exactly
// once; absent optional fields are omitted entirely.
func (ev *AuditEvent) String() string {
	var b strings.Builder

	b.WriteString(ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z"))
	fmt.Fprintf(&b, " %s [%d:%d]", ev.Name(), ev.Type, ev.Modifier)

	if ev.Subject != nil {
		writeIdentity(&b, "subject", ev.Subject)
	}
	if ev.Process != nil {
		writeIdentity(&b, "process", ev.Process)
	}
	for i := 0; i < ev.ArgsCount; i++ {
		if !ev.Args[i].Present {
			continue
		}
		if ev.Args[i].Text != "" {
			fmt.Fprintf(&b, " args[%d:%s]=%d", i, ev.Args[i].Text, ev.Args[i].Value)
		} else {
			fmt.Fprintf(&b, " args[%d]=%d", i, ev.Args[i].Value)
		}
	}
	if ev.Return != nil {
		fmt.Fprintf(&b, " return_error=%d return_value=%d", ev.Return.Error, ev.Return.Value)
	}
	if ev.Exit != nil {
		fmt.Fprintf(&b, " exit_status=%d exit_return=%d", ev.Exit.Status, ev.Exit.Return)
	}
	for i, text := range ev.Text {
		fmt.Fprintf(&b, " text[%d]=%s", i, text)
	}
	for i, path := range ev.Path {
		fmt.Fprintf(&b, " path[%d]='%s'", i, path)
	}
	for i, attr := range ev.Attrs {
		fmt.Fprintf(&b, " attr[%d] mode=%o uid=%d gid=%d", i, attr.Mode, attr.UID, attr.GID)
	}
	if ev.ExecArgs != nil {
		b.WriteString(" execarg")
		writeVec(&b, ev.ExecArgs)
	}
	if ev.ExecEnv != nil {
		b.WriteString(" execenv")
		writeVec(&b, ev.ExecEnv)
	}
	if ev.SockPeer != nil {
		fmt.Fprintf(&b, " sockinet=%s:%d", ev.SockPeer.Addr.StringOr("-"), ev.SockPeer.Port)
	}
	if ids := ev.UnknownTokenIDs(); len(ids) > 0 {
		b.WriteString(" unk_tokids=")
		for i, id := range ids {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "0x%02x", id)
		}
	}

	return b.String()
}

func writeIdentity(b *strings.Builder, label string, id *Identity) {
	dev := "-"
	if id.TTYDev != NoDevice {
		dev = strconv.FormatUint(uint64(id.TTYDev), 10)
	}
	fmt.Fprintf(b,
		" %s_pid=%d %s_sid=%d %s_tid=/dev/%s[%s]"+
			" %s_auid=%d %s_euid=%d %s_egid=%d %s_ruid=%d %s_rgid=%d",
		label, id.PID,
		label, id.SID,
		label, dev, id.TTYAddr.StringOr("-"),
		label, id.AUID,
		label, id.EUID,
		label, id.EGID,
		label, id.RUID,
		label, id.RGID)
}

// writeVec joins a string vector shell-like: execarg='/bin/ls' '-l'.
func writeVec(b *strings.Builder, vec []string) {
	for i, s := range vec {
		if i == 0 {
			b.WriteByte('=')
		} else {
			b.WriteByte(' ')
		}
		b.WriteByte('\'')
		b.WriteString(s)
		b.WriteByte('\'')
	}
}
