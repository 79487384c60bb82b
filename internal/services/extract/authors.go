package extract

import (
	"strconv"

	"github.com/ternarybob/leadharvest/internal/models"
)

// ResolveAuthors back-fills author ids from the identity map:
//   - a user id with no contact id gets the chat identity of that id
//   - a contact id with no user id is matched back to the user sharing its identity
//   - a contact id that is still empty falls back to the user id
func ResolveAuthors(messages []models.Message, ids *models.IdentityMap) {
	for i := range messages {
		author := messages[i].Author
		if author == nil {
			continue
		}

		if author.ContactID == "" && author.ID != "" {
			if identity, ok := ids.Contact(author.ID); ok {
				author.ContactID = strconv.FormatInt(identity, 10)
			}
		}

		if author.ID == "" && author.ContactID != "" {
			identity, ok := ids.Contact(author.ContactID)
			if !ok {
				if n, err := strconv.ParseInt(author.ContactID, 10, 64); err == nil {
					identity, ok = n, true
				}
			}
			if ok {
				if userID, found := ids.UserByValue(identity); found {
					author.ID = userID
				}
			}
		}

		if author.ContactID == "" && author.ID != "" {
			author.ContactID = author.ID
		}
	}
}
