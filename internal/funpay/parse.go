package funpay

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var userHrefPattern = regexp.MustCompile(`/users/(\d+)`)

// ExtractChatSummaries parses the chat bookmark markup returned by the
// runner endpoint. Entries keep the order they have in the markup.
func ExtractChatSummaries(fragment string) ([]ChatSummary, error) {
	root, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing chat bookmarks: %v", ErrMalformedResponse, err)
	}

	items := findAll(root, func(n *html.Node) bool {
		return n.Data == "a" && hasClass(n, "contact-item")
	})

	chats := make([]ChatSummary, 0, len(items))
	for i, item := range items {
		rawID, ok := attr(item, "data-id")
		if !ok {
			return nil, fmt.Errorf("%w: chat bookmark %d has no data-id", ErrMalformedResponse, i)
		}
		chatID, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: chat bookmark %d has bad data-id %q", ErrMalformedResponse, i, rawID)
		}

		msgNode := findFirst(item, classMatcher("div", "contact-item-message"))
		if msgNode == nil {
			return nil, fmt.Errorf("%w: chat %d has no message preview", ErrMalformedResponse, chatID)
		}
		nameNode := findFirst(item, classMatcher("div", "media-user-name"))
		if nameNode == nil {
			return nil, fmt.Errorf("%w: chat %d has no counterpart name", ErrMalformedResponse, chatID)
		}

		chats = append(chats, ChatSummary{
			ChatID:      chatID,
			PreviewText: strings.TrimSpace(textContent(msgNode)),
			ChatWith:    strings.TrimSpace(textContent(nameNode)),
			Unread:      hasClass(item, "unread"),
		})
	}
	return chats, nil
}

// ParseOrders parses the seller's trade page into orders, in page order.
func ParseOrders(page string) ([]Order, error) {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing trade page: %v", ErrMalformedResponse, err)
	}

	items := findAll(root, func(n *html.Node) bool {
		return n.Data == "a" && hasClass(n, "tc-item")
	})

	orders := make([]Order, 0, len(items))
	for i, item := range items {
		idNode := findFirst(item, classMatcher("div", "tc-order"))
		if idNode == nil {
			return nil, fmt.Errorf("%w: order row %d has no id", ErrMalformedResponse, i)
		}
		id := strings.TrimPrefix(strings.TrimSpace(textContent(idNode)), "#")
		if id == "" {
			return nil, fmt.Errorf("%w: order row %d has an empty id", ErrMalformedResponse, i)
		}

		order := Order{
			ID:     id,
			Status: statusFromClasses(item),
			HTML:   renderNode(item),
		}

		if desc := findFirst(item, classMatcher("div", "order-desc")); desc != nil {
			if title := findFirst(desc, func(n *html.Node) bool { return n != desc && n.Data == "div" }); title != nil {
				order.Title = strings.TrimSpace(textContent(title))
			}
		}

		if priceNode := findFirst(item, classMatcher("div", "tc-price")); priceNode != nil {
			order.Price = parsePrice(textContent(priceNode))
		}

		if buyer := findFirst(item, classMatcher("div", "media-user-name")); buyer != nil {
			if span := findFirst(buyer, func(n *html.Node) bool { return n.Data == "span" }); span != nil {
				order.BuyerUsername = strings.TrimSpace(textContent(span))
				if href, ok := attr(span, "data-href"); ok {
					order.BuyerID = parseUserID(href)
				}
			} else {
				order.BuyerUsername = strings.TrimSpace(textContent(buyer))
			}
		}

		orders = append(orders, order)
	}
	return orders, nil
}

// appData mirrors the JSON embedded in the body's data-app-data attribute.
type appData struct {
	UserID    int64  `json:"userId"`
	CSRFToken string `json:"csrf-token"`
	Locale    string `json:"locale"`
}

// parseAppData reads the account data the site embeds into every page.
func parseAppData(page string) (*appData, error) {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	body := findFirst(root, func(n *html.Node) bool { return n.Data == "body" })
	if body == nil {
		return nil, ErrAccountData
	}
	raw, ok := attr(body, "data-app-data")
	if !ok {
		return nil, ErrAccountData
	}

	var data appData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("%w: decoding data-app-data: %v", ErrAccountData, err)
	}
	return &data, nil
}

func statusFromClasses(n *html.Node) OrderStatus {
	switch {
	case hasClass(n, "warning"):
		return OrderRefund
	case hasClass(n, "info"):
		return OrderOutstanding
	default:
		return OrderCompleted
	}
}

func parsePrice(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", "."), 64)
	if err != nil {
		return 0
	}
	return price
}

func parseUserID(href string) int64 {
	m := userHrefPattern.FindStringSubmatch(href)
	if m == nil {
		return 0
	}
	id, _ := strconv.ParseInt(m[1], 10, 64)
	return id
}

func classMatcher(tag, class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Data == tag && hasClass(n, class)
	}
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && match(node) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	classes, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(classes) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}
