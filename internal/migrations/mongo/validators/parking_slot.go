package validators

import "go.mongodb.org/mongo-driver/bson"

var (
	nullableString = bson.M{"bsonType": bson.A{"string", "null"}}
	nullableDate   = bson.M{"bsonType": bson.A{"date", "null"}}
	integer        = bson.A{"int", "long"}
)

func nullableEnum(values ...string) bson.M {
	enum := bson.A{nil}
	for _, v := range values {
		enum = append(enum, v)
	}
	return bson.M{
		"bsonType": bson.A{"string", "null"},
		"enum":     enum,
	}
}

var ParkingSlotValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"status",
			"qr_code",
			"version",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
				"pattern":  `^[A-Z]-\d{2}$`,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"available",
					"reserved",
					"occupied",
					"leaving",
					"maintenance",
				},
			},

			"floor": bson.M{
				"bsonType": integer,
				"minimum":  0,
			},

			"qr_code": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"version": bson.M{
				"bsonType": integer,
				"minimum":  0,
			},

			"vehicle_number": nullableString,
			"booked_by":      nullableString,

			"reservation_time":     nullableDate,
			"arrival_time":         nullableDate,
			"parked_time":          nullableDate,
			"leaving_request_time": nullableDate,
			"payment_time":         nullableDate,

			"occupied_request_status": nullableEnum("pending", "approved", "rejected"),
			"leaving_request_status":  nullableEnum("pending", "approved", "rejected"),
			"payment_status":          nullableEnum("pending", "paid"),

			"cost": bson.M{
				"bsonType": integer,
				"minimum":  0,
			},

			"reservation_qr_code": nullableString,
			"occupied_qr_code":    nullableString,

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
