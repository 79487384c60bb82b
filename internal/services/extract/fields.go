package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/models"
)

// ParseFields reads every field block matching scopeSelector in the document
func ParseFields(doc *goquery.Document, sel common.Selectors, scopeSelector string) []models.Field {
	if scopeSelector == "" {
		return []models.Field{}
	}
	return parseFieldList(doc.Find(scopeSelector), sel)
}

// ParseContactFields reads one field list per contact card
func ParseContactFields(doc *goquery.Document, sel common.Selectors) [][]models.Field {
	contacts := [][]models.Field{}
	container := sel.Get(common.SelContactField)
	if container == "" {
		return contacts
	}

	doc.Find(container).Each(func(_ int, card *goquery.Selection) {
		contacts = append(contacts, parseFieldList(card.Find(sel.Get(common.SelContactFields)), sel))
	})
	return contacts
}

func parseFieldList(blocks *goquery.Selection, sel common.Selectors) []models.Field {
	fields := make([]models.Field, 0, blocks.Length())
	blocks.Each(func(_ int, block *goquery.Selection) {
		fields = append(fields, parseField(block, sel))
	})
	return fields
}

// parseField prefers the select-style label and hidden-input value over plain text
func parseField(block *goquery.Selection, sel common.Selectors) models.Field {
	field := models.Field{
		ID: block.AttrOr(sel.Get(common.SelMainFieldIDAttr), ""),
	}

	if label := block.Find(sel.Get(common.SelMainFieldName)).First(); label.Length() > 0 {
		if selectLabel := label.Find(sel.Get(common.SelMainFieldNameSelect)).First(); selectLabel.Length() > 0 {
			field.Name = Normalize(selectLabel.Text())
			if field.ID == "" {
				field.ID = selectLabel.AttrOr(sel.Get(common.SelMainFieldIDAttr2), "")
			}
		} else {
			field.Name = Normalize(label.Text())
		}
	}

	if value := block.Find(sel.Get(common.SelMainFieldValue)).First(); value.Length() > 0 {
		if input := value.Find(sel.Get(common.SelMainFieldValueSelect)).First(); input.Length() > 0 {
			field.Value = Normalize(input.AttrOr("value", ""))
		} else {
			field.Value = Normalize(value.Text())
		}
	}

	return field
}
