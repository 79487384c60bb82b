package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/leadharvest/internal/models"
)

func TestResolveAuthors(t *testing.T) {
	ids := &models.IdentityMap{
		Users:    map[string]int64{"55": 900, "56": 901, "57": 901},
		Contacts: map[string]int64{"7": 901},
	}

	messages := []models.Message{
		models.NewPlainMessage(models.MessageHeader{ID: "a", Author: &models.Author{ContactID: "7"}}),
		models.NewPlainMessage(models.MessageHeader{ID: "b", Author: &models.Author{ID: "55"}}),
		models.NewPlainMessage(models.MessageHeader{ID: "c", Author: &models.Author{ContactID: "900"}}),
		models.NewPlainMessage(models.MessageHeader{ID: "d"}),
	}

	ResolveAuthors(messages, ids)

	assert.Equal(t, &models.Author{ID: "56", ContactID: "7"}, messages[0].Author)
	assert.Equal(t, &models.Author{ID: "55", ContactID: "55"}, messages[1].Author)
	assert.Equal(t, &models.Author{ID: "55", ContactID: "900"}, messages[2].Author)
	assert.Nil(t, messages[3].Author)
}

func TestResolveAuthors_ContactLookupByUserID(t *testing.T) {
	ids := &models.IdentityMap{
		Users:    map[string]int64{},
		Contacts: map[string]int64{"55": 12345},
	}
	messages := []models.Message{
		models.NewPlainMessage(models.MessageHeader{Author: &models.Author{ID: "55"}}),
	}

	ResolveAuthors(messages, ids)
	assert.Equal(t, "12345", messages[0].Author.ContactID)
}

func TestResolveAuthors_NilMap(t *testing.T) {
	messages := []models.Message{
		models.NewPlainMessage(models.MessageHeader{Author: &models.Author{ID: "5"}}),
	}
	ResolveAuthors(messages, nil)
	assert.Equal(t, "5", messages[0].Author.ContactID)
}
