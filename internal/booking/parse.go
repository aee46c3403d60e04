package booking

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"bigzbot/internal/models"
)

const tokenField = "csrfmiddlewaretoken"

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, classes ...string) bool {
	have := strings.Fields(attr(n, "class"))
	for _, want := range classes {
		found := false
		for _, c := range have {
			if c == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

// collectText returns the visible text of the subtree with runs of
// whitespace collapsed to single spaces.
func collectText(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteString(" ")
		}
		return true
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

// parseAvailableSlots extracts slot options from an availability page.
// Each available slot is a div.alert.alert-success block holding an
// input[name=time] with the form value. A page without such blocks is a
// valid empty result.
func parseAvailableSlots(r io.Reader) ([]models.SlotOption, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	slots := []models.SlotOption{}
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "div" || !hasClass(n, "alert", "alert-success") {
			return true
		}
		var value string
		walk(n, func(c *html.Node) bool {
			if c.Type == html.ElementNode && c.Data == "input" && attr(c, "name") == "time" {
				value = attr(c, "value")
				return false
			}
			return true
		})
		if value != "" {
			slots = append(slots, models.SlotOption{Value: value, Label: collectText(n)})
		}
		return false
	})
	return slots, nil
}

// findToken returns the anti-forgery token embedded in the page, or "".
func findToken(root *html.Node) string {
	var token string
	walk(root, func(n *html.Node) bool {
		if token == "" && n.Type == html.ElementNode && n.Data == "input" && attr(n, "name") == tokenField {
			token = attr(n, "value")
			return false
		}
		return true
	})
	return token
}

// findFormAction returns the action attribute of the booking form, or "".
func findFormAction(root *html.Node) string {
	var action string
	walk(root, func(n *html.Node) bool {
		if action == "" && n.Type == html.ElementNode && n.Data == "form" {
			action = attr(n, "action")
			return false
		}
		return true
	})
	return action
}
