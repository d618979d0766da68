package validators

import "go.mongodb.org/mongo-driver/bson"

var CompletedParkingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"session_key",
			"user",
			"slot_id",
			"vehicle_number",
			"parked_time",
			"leaving_request_time",
			"completed_time",
			"duration",
			"cost",
			"payment_status",
			"payment_time",
			"approved_by",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"session_key": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"user": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"slot_id": bson.M{
				"bsonType": "string",
				"pattern":  `^[A-Z]-\d{2}$`,
			},

			"vehicle_number": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 20,
			},

			"reservation_time":     bson.M{"bsonType": "date"},
			"arrival_time":         bson.M{"bsonType": "date"},
			"parked_time":          bson.M{"bsonType": "date"},
			"leaving_request_time": bson.M{"bsonType": "date"},
			"completed_time":       bson.M{"bsonType": "date"},
			"payment_time":         bson.M{"bsonType": "date"},
			"created_at":           bson.M{"bsonType": "date"},

			"duration": bson.M{
				"bsonType": "object",
				"required": []string{"hours", "minutes", "total_minutes"},
				"properties": bson.M{
					"hours":         bson.M{"bsonType": integer, "minimum": 0},
					"minutes":       bson.M{"bsonType": integer, "minimum": 0, "maximum": 59},
					"total_minutes": bson.M{"bsonType": integer, "minimum": 0},
				},
			},

			"cost": bson.M{
				"bsonType": integer,
				"minimum":  0,
			},

			"payment_status": bson.M{
				"bsonType": "string",
				"enum":     []string{"paid"},
			},

			"approved_by": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
		},
	},
}
