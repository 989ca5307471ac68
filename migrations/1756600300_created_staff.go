package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "stf0000000000001",
			"name": "staff",
			"type": "auth",
			"system": false,
			"fields": [
				{
					"id": "stf_name",
					"name": "name",
					"type": "text",
					"required": true,
					"system": false
				},
				{
					"id": "stf_counter",
					"name": "counter",
					"type": "relation",
					"required": false,
					"system": false,
					"collectionId": "ctr0000000000001",
					"cascadeDelete": false,
					"maxSelect": 1
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
		collection, err := app.FindCollectionByNameOrId("stf0000000000001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
