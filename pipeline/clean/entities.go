package clean

import (
	"math"
	"time"

	"fablab-opendata/pipeline/linkeddata"
	"fablab-opendata/pipeline/record"
	"fablab-opendata/pipeline/redact"
)

// entitySpec is the per-entity-type behavior behind the shared Cleaner:
// which raw records are filtered, how nested payloads flatten into schema
// fields, and whether cleaned records carry a linked-data uri.
type entitySpec struct {
	attachURI bool
	filter    func(raw record.Record, opts Options) (bool, string)
	flatten   func(raw record.Record, opts Options) (record.Record, string, error)
}

var entitySpecs = map[string]entitySpec{
	redact.EntityMachine: {
		attachURI: true,
		filter:    filterDisabled,
		flatten:   catalogFlatten(redact.EntityMachine),
	},
	redact.EntityTraining: {
		attachURI: true,
		filter:    filterDisabled,
		flatten:   catalogFlatten(redact.EntityTraining),
	},
	redact.EntityReservationMachine: {
		attachURI: true,
		filter:    filterReservableType("Machine"),
		flatten:   reservationFlatten(redact.EntityMachine, true),
	},
	redact.EntityReservationTraining: {
		attachURI: true,
		filter:    filterReservableType("Training"),
		flatten:   reservationFlatten(redact.EntityTraining, false),
	},
	redact.EntityUser: {
		// user uris would hand out a stable public identifier per person,
		// defeating the anonymization; the pseudonym is their identity
		attachURI: false,
		filter:    keepAll,
		flatten:   userFlatten,
	},
}

func keepAll(record.Record, Options) (bool, string) {
	return true, ""
}

func filterDisabled(raw record.Record, opts Options) (bool, string) {
	if opts.IncludeDisabled {
		return true, ""
	}
	if disabled, ok := raw.Bool("disabled"); ok && disabled {
		return false, "disabled"
	}
	return true, ""
}

// filterReservableType drops reservations of the wrong reservable kind, since
// the source API returns machine and training reservations from one endpoint.
// Records without the field pass through; pre-filtered inputs stay usable.
func filterReservableType(want string) func(record.Record, Options) (bool, string) {
	return func(raw record.Record, _ Options) (bool, string) {
		if kind, ok := raw.String("reservable_type"); ok && kind != want {
			return false, "reservable_type"
		}
		return true, ""
	}
}

// catalogFlatten handles machines and trainings: flat payloads whose uri
// comes from the record's own slug (or numeric id as fallback).
func catalogFlatten(uriType string) func(record.Record, Options) (record.Record, string, error) {
	return func(raw record.Record, opts Options) (record.Record, string, error) {
		flat := raw.Clone()
		if !opts.IncludeDisabled {
			delete(flat, "disabled")
		}

		id, ok := raw.Identity("slug")
		if !ok {
			if id, ok = raw.Identity("id"); !ok {
				return nil, "", record.MissingIdentifierError{Field: "slug"}
			}
		}
		uri, err := linkeddata.BuildURI(opts.Namespace, uriType, id)
		if err != nil {
			return nil, "", err
		}
		return flat, uri, nil
	}
}

// reservationFlatten turns a nested reservation payload into the flat shape
// the reservation schemas describe: subject fields from the embedded user,
// the reservable reference as {kind}_id / {kind}_uri, and slot-derived usage
// fields. Already-flat records pass straight through.
func reservationFlatten(reservableKind string, withUsage bool) func(record.Record, Options) (record.Record, string, error) {
	return func(raw record.Record, opts Options) (record.Record, string, error) {
		flat := record.Record{}
		passthrough := []string{
			"user_email", "user_id", "user_group", "date", "canceled",
			"created_at", "updated_at",
			reservableKind + "_id", reservableKind + "_uri",
		}
		if withUsage {
			passthrough = append(passthrough, "booking_date", "time_spent_hours")
		}
		for _, name := range passthrough {
			if value, ok := raw[name]; ok {
				flat[name] = value
			}
		}

		if user, ok := raw.Child("user"); ok {
			if email, ok := user.String("email"); ok {
				flat["user_email"] = email
			}
			if id, ok := user.Identity("id"); ok {
				flat["user_id"] = id
			}
			if group, ok := user.Child("group"); ok {
				if name, ok := group.String("name"); ok {
					flat["user_group"] = name
				}
			}
		}

		if reservable, ok := raw.Child("reservable"); ok {
			if id, ok := reservable.Int("id"); ok {
				flat[reservableKind+"_id"] = id
			}
			if slug, ok := reservable.Identity("slug"); ok {
				uri, err := linkeddata.BuildURI(opts.Namespace, reservableKind, slug)
				if err != nil {
					return nil, "", err
				}
				flat[reservableKind+"_uri"] = uri
			}
		}

		if slots := raw.Children("reserved_slots"); len(slots) > 0 {
			flattenSlots(flat, slots, withUsage)
		}

		id, ok := raw.Identity("id")
		if !ok {
			return nil, "", record.MissingIdentifierError{Field: "id"}
		}
		uri, err := linkeddata.BuildURI(opts.Namespace, "reservation", id)
		if err != nil {
			return nil, "", err
		}
		return flat, uri, nil
	}
}

func flattenSlots(flat record.Record, slots []record.Record, withUsage bool) {
	canceled := false
	for _, slot := range slots {
		if at, ok := slot["canceled_at"]; ok && at != nil {
			canceled = true
			break
		}
	}
	flat["canceled"] = canceled

	if !withUsage {
		return
	}

	if start, ok := slots[0].String("start_at"); ok {
		if date, ok := dateOf(start); ok {
			flat["booking_date"] = date
		}
	}

	var total float64
	for _, slot := range slots {
		start, okStart := slot.String("start_at")
		end, okEnd := slot.String("end_at")
		if !okStart || !okEnd {
			continue
		}
		if hours, ok := hoursBetween(start, end); ok {
			total += hours
		}
	}
	if total > 0 {
		flat["time_spent_hours"] = math.Round(total*100) / 100
	}
}

func userFlatten(raw record.Record, _ Options) (record.Record, string, error) {
	flat := record.Record{}
	for _, name := range []string{
		"email", "id", "first_name", "last_name", "full_name", "phone",
		"user_group", "created_at", "updated_at",
	} {
		if value, ok := raw[name]; ok {
			flat[name] = value
		}
	}
	if group, ok := raw.Child("group"); ok {
		if name, ok := group.String("name"); ok {
			flat["user_group"] = name
		}
	}
	return flat, "", nil
}

func dateOf(timestamp string) (string, bool) {
	for i := range timestamp {
		if timestamp[i] == 'T' {
			return timestamp[:i], true
		}
	}
	return "", false
}

func hoursBetween(startAt, endAt string) (float64, bool) {
	start, err := time.Parse(time.RFC3339, startAt)
	if err != nil {
		return 0, false
	}
	end, err := time.Parse(time.RFC3339, endAt)
	if err != nil {
		return 0, false
	}
	return end.Sub(start).Hours(), true
}
