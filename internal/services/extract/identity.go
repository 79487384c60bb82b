package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/leadharvest/internal/models"
)

var amojoChatsPattern = regexp.MustCompile(`AMOCRM\.constant\('amojo_chats',(.*?)\);`)

// ParseIdentityMap reads the chat identity constant embedded in the page scripts.
// The last occurrence wins. Any failure yields an empty map.
func ParseIdentityMap(doc *goquery.Document) *models.IdentityMap {
	ids := models.NewIdentityMap()

	payload := ""
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, match := range amojoChatsPattern.FindAllStringSubmatch(s.Text(), -1) {
			payload = strings.TrimSpace(match[1])
		}
	})

	if payload == "" || !gjson.Valid(payload) {
		return ids
	}

	chats := gjson.Parse(payload)
	if !chats.IsObject() {
		return ids
	}

	chats.ForEach(func(_, chat gjson.Result) bool {
		chat.Get("users").ForEach(func(userID, user gjson.Result) bool {
			if id := user.Get("id"); id.Exists() {
				ids.Users[userID.String()] = id.Int()
			}
			return true
		})
		chat.Get("contacts").ForEach(func(contactID, contact gjson.Result) bool {
			if id := contact.Get("id"); id.Exists() {
				ids.Contacts[contactID.String()] = id.Int()
			}
			return true
		})
		return true
	})

	return ids
}
