package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// The verifications collection is written by the external document-review
// panel; the queue core only reads the latest decision per citizen+claim.
func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "vrf0000000000001",
			"name": "verifications",
			"type": "base",
			"system": false,
			"fields": [
				{
					"id": "vrf_citizen",
					"name": "citizen",
					"type": "text",
					"required": true,
					"system": false
				},
				{
					"id": "vrf_claim",
					"name": "claim",
					"type": "select",
					"required": true,
					"system": false,
					"maxSelect": 1,
					"values": ["emergency", "disabled", "senior"]
				},
				{
					"id": "vrf_decision",
					"name": "decision",
					"type": "select",
					"required": true,
					"system": false,
					"maxSelect": 1,
					"values": ["approved", "rejected", "pending"]
				},
				{
					"id": "vrf_evidence",
					"name": "evidence",
					"type": "file",
					"required": false,
					"system": false,
					"maxSelect": 5,
					"maxSize": 5242880
				},
				{
					"id": "vrf_created",
					"name": "created",
					"type": "autodate",
					"onCreate": true,
					"onUpdate": false,
					"system": false
				}
			],
			"indexes": [
				"CREATE INDEX idx_verifications_citizen ON verifications (citizen, claim)"
			],
			"listRule": null,
			"viewRule": null,
			"createRule": null,
			"updateRule": null,
			"deleteRule": null
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("vrf0000000000001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
