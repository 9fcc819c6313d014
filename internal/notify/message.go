// internal/notify/message.go
package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"bookstore/internal/model"
)

var availabilityTemplate = template.Must(template.New("availability").Parse(`<p>Hello {{.Name}},</p>
<p>A copy of <strong>{{.Title}}</strong> is now available. You were number {{.Position}} on the waiting list.</p>
<p>Copies are lent first come, first served, so borrow it soon.</p>`))

// AvailabilityMessage renders the subject and body sent to the head of a waiting list.
func AvailabilityMessage(user *model.User, book *model.Book, entry *model.WaitingListEntry) (string, string, error) {
	name := user.Name
	if name == "" {
		name = user.Email
	}

	var body bytes.Buffer
	err := availabilityTemplate.Execute(&body, struct {
		Name     string
		Title    string
		Position int
	}{
		Name:     name,
		Title:    book.Title,
		Position: entry.Position,
	})
	if err != nil {
		return "", "", fmt.Errorf("render availability message: %w", err)
	}

	return fmt.Sprintf("%q is available", book.Title), body.String(), nil
}
