package redact

// Entity type names shared by schemas, cleaners and URI construction.
const (
	EntityMachine             = "machine"
	EntityTraining            = "training"
	EntityReservationMachine  = "reservation_machine"
	EntityReservationTraining = "reservation_training"
	EntityUser                = "user"
)

// Built-in schemas for the FabManager datasets. Reservation and user schemas
// describe the flattened shape produced by the cleaner, not the nested API
// payload.
//
// The guiding split: categories, dates and durations carry the statistical
// value and survive; names, emails, phone numbers and internal row ids are
// direct identifiers and never do.
var builtinSchemas = map[string]Schema{
	EntityMachine: {
		EntityType: EntityMachine,
		Fields: map[string]FieldClass{
			"id":          Drop,
			"slug":        Drop,
			"name":        Keep,
			"description": HTML,
			"spec":        HTML,
			"disabled":    Keep,
			"created_at":  Timestamp,
			"updated_at":  Timestamp,
		},
	},
	EntityTraining: {
		EntityType: EntityTraining,
		Fields: map[string]FieldClass{
			"id":              Drop,
			"slug":            Drop,
			"name":            Keep,
			"description":     HTML,
			"nb_total_places": Keep,
			"disabled":        Keep,
			"created_at":      Timestamp,
			"updated_at":      Timestamp,
		},
	},
	EntityReservationMachine: {
		EntityType: EntityReservationMachine,
		Subject:    []string{"user_email", "user_id"},
		Fields: map[string]FieldClass{
			"id":               Drop,
			"user_email":       Subject,
			"user_id":          Subject,
			"user_group":       Keep,
			"machine_id":       Keep,
			"machine_uri":      Keep,
			"booking_date":     Keep,
			"date":             Keep,
			"canceled":         Keep,
			"time_spent_hours": Keep,
			"created_at":       Timestamp,
			"updated_at":       Timestamp,
		},
	},
	EntityReservationTraining: {
		EntityType: EntityReservationTraining,
		Subject:    []string{"user_email", "user_id"},
		Fields: map[string]FieldClass{
			"id":           Drop,
			"user_email":   Subject,
			"user_id":      Subject,
			"user_group":   Keep,
			"training_id":  Keep,
			"training_uri": Keep,
			"date":         Keep,
			"canceled":     Keep,
			"created_at":   Timestamp,
			"updated_at":   Timestamp,
		},
	},
	EntityUser: {
		EntityType: EntityUser,
		Subject:    []string{"email", "id"},
		Fields: map[string]FieldClass{
			"id":         Subject,
			"email":      Subject,
			"first_name": Drop,
			"last_name":  Drop,
			"full_name":  Drop,
			"phone":      Drop,
			"user_group": Keep,
			"created_at": Timestamp,
			"updated_at": Timestamp,
		},
	},
}

// SchemaFor returns the built-in schema for an entity type.
func SchemaFor(entityType string) (Schema, bool) {
	s, ok := builtinSchemas[entityType]
	return s, ok
}
