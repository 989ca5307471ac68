package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "ctr0000000000001",
			"name": "counters",
			"type": "base",
			"system": false,
			"fields": [
				{
					"id": "ctr_name",
					"name": "name",
					"type": "text",
					"required": true,
					"system": false
				},
				{
					"id": "ctr_service",
					"name": "service",
					"type": "relation",
					"required": true,
					"system": false,
					"collectionId": "svc0000000000001",
					"cascadeDelete": false,
					"maxSelect": 1
				},
				{
					"id": "ctr_active",
					"name": "active",
					"type": "bool",
					"required": false,
					"system": false
				}
			],
			"indexes": [],
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
		collection, err := app.FindCollectionByNameOrId("ctr0000000000001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
