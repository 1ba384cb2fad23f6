package display

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

// Display prints each snapshot as one json document.
type Display struct {
	out    io.Writer
	indent bool
}

func NewDisplay() Display {
	return Display{out: os.Stdout}
}

// NewDisplayTo writes to w, pretty printed when indent is set.
func NewDisplayTo(w io.Writer, indent bool) Display {
	return Display{out: w, indent: indent}
}

func (d Display) Name() string { return "display" }

func (d Display) SendSnapshot(snap model.Snapshot) error {
	var (
		buf []byte
		err error
	)

	if d.indent {
		buf, err = json.MarshalIndent(snap, "", "  ")
	} else {
		buf, err = json.Marshal(snap)
	}
	if err != nil {
		return errors.Join(err, errors.New("failed to marshal snapshot display.SendSnapshot"))
	}
	_, err = fmt.Fprintln(d.out, string(buf))
	return err
}
