package validators

import "go.mongodb.org/mongo-driver/bson"

var UserValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"name",
			"email",
			"password_hash",
			"role",
			"is_blocked",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"email": bson.M{
				"bsonType": "string",
				"pattern":  `^[^@\s]+@[^@\s]+\.[^@\s]+$`,
			},

			"password_hash": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"role": bson.M{
				"bsonType": "string",
				"enum":     []string{"user", "admin"},
			},

			"vehicle_number": bson.M{
				"bsonType":  "string",
				"maxLength": 20,
			},

			"is_blocked": bson.M{
				"bsonType": "bool",
			},

			"blocked_at": nullableDate,
			"blocked_by": nullableString,

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
