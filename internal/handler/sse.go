package handler

import (
	"bytes"
	"fmt"
	"io"
)

// Event is a single server-sent event. Data spanning multiple lines is
// split into one data: field per line as the protocol requires.
type Event struct {
	ID    []byte
	Event []byte
	Data  []byte
}

func (ev *Event) MarshalTo(w io.Writer) error {
	if len(ev.Data) == 0 {
		return nil
	}

	if len(ev.ID) > 0 {
		if _, err := fmt.Fprintf(w, "id: %s\n", ev.ID); err != nil {
			return err
		}
	}

	if len(ev.Event) > 0 {
		if _, err := fmt.Fprintf(w, "event: %s\n", ev.Event); err != nil {
			return err
		}
	}

	lines := bytes.Split(ev.Data, []byte("\n"))
	for i := range lines {
		if _, err := fmt.Fprintf(w, "data: %s\n", lines[i]); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprint(w, "\n"); err != nil {
		return err
	}

	return nil
}
