package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "svc0000000000001",
			"name": "services",
			"type": "base",
			"system": false,
			"fields": [
				{
					"id": "svc_name",
					"name": "name",
					"type": "text",
					"required": true,
					"system": false
				},
				{
					"id": "svc_code",
					"name": "code",
					"type": "text",
					"required": true,
					"system": false,
					"max": 3
				},
				{
					"id": "svc_handle",
					"name": "avg_handle_min",
					"type": "number",
					"required": true,
					"system": false,
					"min": 1,
					"onlyInt": true
				},
				{
					"id": "svc_active",
					"name": "active",
					"type": "bool",
					"required": false,
					"system": false
				}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_services_code ON services (code)"
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
		collection, err := app.FindCollectionByNameOrId("svc0000000000001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
