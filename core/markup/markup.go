// Package markup builds the reply keyboards shown at each conversation step.
// Keyboards are plain data; the Telegram layer converts them at the edge.
package markup

import (
	"fmt"
	"strings"

	"github.com/ltzehan/thermobot/core/i18n"
	"github.com/ltzehan/thermobot/core/timefmt"
)

// Keyboard describes a reply keyboard or its removal.
type Keyboard struct {
	Rows    [][]string `json:"keyboard,omitempty"`
	OneTime bool       `json:"one_time_keyboard,omitempty"`
	Remove  bool       `json:"remove_keyboard,omitempty"`
}

// Buttons flattens the keyboard in row order.
func (k *Keyboard) Buttons() []string {
	if k == nil {
		return nil
	}
	var out []string
	for _, row := range k.Rows {
		out = append(out, row...)
	}
	return out
}

// Step selects the yes/no pair of a confirmation keyboard.
type Step string

const (
	StepGroup   Step = "group"
	StepMember  Step = "member"
	StepPin     Step = "pin"
	StepSummary Step = "summary"
)

// Member is the minimal view needed to build the name keyboard.
type Member interface {
	DisplayName() string
}

// Catalog produces keyboards using injected labels.
type Catalog struct {
	strings *i18n.Strings
}

// NewCatalog binds the catalog to a loaded string table.
func NewCatalog(s *i18n.Strings) *Catalog {
	return &Catalog{strings: s}
}

// Temperature is the fixed 35.0-37.5 reading keyboard, two columns per row.
func (c *Catalog) Temperature() *Keyboard {
	rows := make([][]string, 0, 13)
	for x := 350; x < 375; x += 2 {
		rows = append(rows, []string{
			fmt.Sprintf("%.1f", float64(x)/10),
			fmt.Sprintf("%.1f", float64(x+1)/10),
		})
	}
	return &Keyboard{Rows: rows, OneTime: true}
}

// ReminderAM lists the 00:01-11:01 hour tokens.
func (c *Catalog) ReminderAM() *Keyboard {
	return c.hourKeyboard(timefmt.AM)
}

// ReminderPM lists the 12:01-23:01 hour tokens.
func (c *Catalog) ReminderPM() *Keyboard {
	return c.hourKeyboard(timefmt.PM)
}

func (c *Catalog) hourKeyboard(half timefmt.Half) *Keyboard {
	first := 0
	if half == timefmt.PM {
		first = 12
	}
	rows := make([][]string, 0, 6)
	for h := first; h < first+12; h += 2 {
		rows = append(rows, []string{c.HourToken(h), c.HourToken(h + 1)})
	}
	return &Keyboard{Rows: rows, OneTime: true}
}

// HourToken renders the button text for hour h.
func (c *Catalog) HourToken(h int) string {
	return fmt.Sprintf(c.strings.Pattern("format.hour_token"), h)
}

// ParseHourToken maps a button text back to its hour, accepting only hours of
// the requested half.
func (c *Catalog) ParseHourToken(text string, half timefmt.Half) (int, bool) {
	text = strings.TrimSpace(text)
	first := 0
	if half == timefmt.PM {
		first = 12
	}
	for h := first; h < first+12; h++ {
		if c.HourToken(h) == text {
			return h, true
		}
	}
	return 0, false
}

// Yes returns the affirmative label of a step.
func (c *Catalog) Yes(step Step) string {
	return c.strings.Text("label." + string(step) + ".yes")
}

// No returns the negative label of a step.
func (c *Catalog) No(step Step) string {
	return c.strings.Text("label." + string(step) + ".no")
}

// Confirm is the yes/no keyboard of a step.
func (c *Catalog) Confirm(step Step) *Keyboard {
	return &Keyboard{
		Rows:    [][]string{{c.Yes(step)}, {c.No(step)}},
		OneTime: true,
	}
}

// PinSetupDone is shown while the user sets a PIN on the directory site.
func (c *Catalog) PinSetupDone() *Keyboard {
	return &Keyboard{Rows: [][]string{{c.DoneLabel()}}, OneTime: true}
}

// DoneLabel is the text of the PinSetupDone button.
func (c *Catalog) DoneLabel() string {
	return c.strings.Text("label.pin_setup.done")
}

// Members lists one member per row, in the order given.
func Members[M Member](members []M) *Keyboard {
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, []string{m.DisplayName()})
	}
	return &Keyboard{Rows: rows, OneTime: true}
}

// Remove hides any keyboard currently shown.
func Remove() *Keyboard {
	return &Keyboard{Remove: true}
}
