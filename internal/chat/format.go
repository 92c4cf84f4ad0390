package chat

import "fmt"

// Format renders m as a single transcript line for terminal output.
func Format(m Message) string {
	switch m.Type {
	case Join:
		return fmt.Sprintf("* %s joined!", m.Sender)
	case Leave:
		return fmt.Sprintf("* %s left!", m.Sender)
	default:
		return fmt.Sprintf("%s: %s", m.Sender, m.Content)
	}
}
