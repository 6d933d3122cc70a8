// Package notify renders the notification emails sent by the synchronization.
package notify

import (
	"fmt"
	"strings"
	"time"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

const dateLayout = "02/01/2006"

// Message is a rendered email.
type Message struct {
	Subject string
	Plain   string
	HTML    string
}

// SessionChange describes new display data of a synchronized session.
type SessionChange struct {
	RecipientName string
	TrainingName  string
	SessionName   string
	Start         *time.Time
	End           *time.Time
	CourseURL     string
}

// RosterChange summarises a roster reconciliation.
type RosterChange struct {
	RecipientName string
	TrainingName  string
	SessionName   string
	Created       int
	Enrolled      int
	Removed       int
	Regrouped     int
	Failed        int
	Rejected      int
	CourseURL     string
}

// AccountCreated carries the credentials of a new account.
type AccountCreated struct {
	RecipientName string
	Username      string
	Password      string
	TrainingName  string
	SessionName   string
	LoginURL      string
}

// SessionDataChanged renders the "session data changed" email.
func SessionDataChanged(d SessionChange) (Message, error) {
	subject := fmt.Sprintf("SIRH session updated: %s", sessionLabel(d.TrainingName, d.SessionName))
	period := periodText(d.Start, d.End)

	var plain strings.Builder
	fmt.Fprintf(&plain, "Hello %s,\n\n", d.RecipientName)
	fmt.Fprintf(&plain, "The SIRH registry reported new data for the session %s.\n", sessionLabel(d.TrainingName, d.SessionName))
	if period != "" {
		fmt.Fprintf(&plain, "Dates: %s\n", period)
	}
	if d.CourseURL != "" {
		fmt.Fprintf(&plain, "\nCourse: %s\n", d.CourseURL)
	}

	body := []Node{
		P(Textf("Hello %s,", d.RecipientName)),
		P(Text("The SIRH registry reported new data for the session "), Strong(Text(sessionLabel(d.TrainingName, d.SessionName))), Text(".")),
		If(period != "", P(Textf("Dates: %s", period))),
		courseLink(d.CourseURL),
	}
	html, err := render(subject, body)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, Plain: plain.String(), HTML: html}, nil
}

// RosterChanged renders the roster summary email.
func RosterChanged(d RosterChange) (Message, error) {
	subject := fmt.Sprintf("SIRH roster synchronized: %s", sessionLabel(d.TrainingName, d.SessionName))
	rows := [][2]string{
		{"Accounts created", fmt.Sprint(d.Created)},
		{"Users enrolled", fmt.Sprint(d.Enrolled)},
		{"Users removed from the group", fmt.Sprint(d.Removed)},
		{"Users moved to the session group", fmt.Sprint(d.Regrouped)},
		{"Rows rejected by validation", fmt.Sprint(d.Rejected)},
		{"Failures", fmt.Sprint(d.Failed)},
	}

	var plain strings.Builder
	fmt.Fprintf(&plain, "Hello %s,\n\n", d.RecipientName)
	fmt.Fprintf(&plain, "The roster of %s changed in the SIRH registry and was synchronized.\n\n", sessionLabel(d.TrainingName, d.SessionName))
	for _, row := range rows {
		fmt.Fprintf(&plain, "%s: %s\n", row[0], row[1])
	}
	if d.CourseURL != "" {
		fmt.Fprintf(&plain, "\nCourse: %s\n", d.CourseURL)
	}

	body := []Node{
		P(Textf("Hello %s,", d.RecipientName)),
		P(Text("The roster of "), Strong(Text(sessionLabel(d.TrainingName, d.SessionName))), Text(" changed in the SIRH registry and was synchronized.")),
		Table(TBody(Map(rows, func(row [2]string) Node {
			return Tr(Td(Text(row[0])), Td(Text(row[1])))
		}))),
		courseLink(d.CourseURL),
	}
	html, err := render(subject, body)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, Plain: plain.String(), HTML: html}, nil
}

// NewAccount renders the credential email of an account created from the registry.
func NewAccount(d AccountCreated) (Message, error) {
	subject := "Your training platform account"

	var plain strings.Builder
	fmt.Fprintf(&plain, "Hello %s,\n\n", d.RecipientName)
	fmt.Fprintf(&plain, "An account was created for you to follow %s.\n\n", sessionLabel(d.TrainingName, d.SessionName))
	fmt.Fprintf(&plain, "Username: %s\nPassword: %s\n", d.Username, d.Password)
	if d.LoginURL != "" {
		fmt.Fprintf(&plain, "\nSign in: %s\n", d.LoginURL)
	}
	plain.WriteString("\nPlease change your password after your first sign in.\n")

	body := []Node{
		P(Textf("Hello %s,", d.RecipientName)),
		P(Text("An account was created for you to follow "), Strong(Text(sessionLabel(d.TrainingName, d.SessionName))), Text(".")),
		Ul(
			Li(Text("Username: "), Code(Text(d.Username))),
			Li(Text("Password: "), Code(Text(d.Password))),
		),
		If(d.LoginURL != "", P(A(Href(d.LoginURL), Text("Sign in")))),
		P(Text("Please change your password after your first sign in.")),
	}
	html, err := render(subject, body)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, Plain: plain.String(), HTML: html}, nil
}

func render(title string, body []Node) (string, error) {
	var sb strings.Builder
	doc := Doctype(HTML(
		Lang("en"),
		Head(Meta(Charset("utf-8")), TitleEl(Text(title))),
		Body(Group(body)),
	))
	if err := doc.Render(&sb); err != nil {
		return "", fmt.Errorf("render email %q: %w", title, err)
	}
	return sb.String(), nil
}

func courseLink(url string) Node {
	if url == "" {
		return nil
	}
	return P(A(Href(url), Text("Open the course")))
}

func sessionLabel(training, session string) string {
	switch {
	case training != "" && session != "":
		return training + " / " + session
	case training != "":
		return training
	case session != "":
		return session
	default:
		return "your SIRH session"
	}
}

func periodText(start, end *time.Time) string {
	switch {
	case start != nil && end != nil:
		return start.Format(dateLayout) + " - " + end.Format(dateLayout)
	case start != nil:
		return "from " + start.Format(dateLayout)
	case end != nil:
		return "until " + end.Format(dateLayout)
	default:
		return ""
	}
}
