package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/kgraphio/tempomem-go/pkg/storage"
)

// marshalJSON marshals a value to a JSON string, mapping nil to the empty string.
func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalJSON unmarshals a JSON string, treating the empty string as absent.
func unmarshalJSON(data string, v interface{}) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

// nullableTime converts an optional time into a driver-friendly value.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// profileFields holds the JSON-serialized columns of a user profile row.
type profileFields struct {
	staticContext  string
	dynamicContext string
	searchPatterns string
	preferredTypes string
	topResources   string
	stats          string
}

// marshalProfileFields serializes the structured profile fields to JSON columns.
//
// The live session marker is stripped before serialization: sessions are
// transient process state and are never persisted.
func marshalProfileFields(profile *storage.UserProfile) (*profileFields, error) {
	dynamic := profile.DynamicContext
	dynamic.CurrentSession = nil

	var fields profileFields
	var err error

	if fields.staticContext, err = marshalJSON(profile.StaticContext); err != nil {
		return nil, err
	}
	if fields.dynamicContext, err = marshalJSON(dynamic); err != nil {
		return nil, err
	}
	if fields.searchPatterns, err = marshalJSON(profile.SearchPatterns); err != nil {
		return nil, err
	}
	if fields.preferredTypes, err = marshalJSON(profile.PreferredTypes); err != nil {
		return nil, err
	}
	if fields.topResources, err = marshalJSON(profile.TopResources); err != nil {
		return nil, err
	}
	if fields.stats, err = marshalJSON(profile.Stats); err != nil {
		return nil, err
	}

	return &fields, nil
}

// unmarshalProfileFields parses the JSON columns of a profile row.
func unmarshalProfileFields(profile *storage.UserProfile, staticJSON, dynamicJSON, patternsJSON, typesJSON, resourcesJSON, statsJSON sql.NullString) error {
	if staticJSON.Valid {
		if err := unmarshalJSON(staticJSON.String, &profile.StaticContext); err != nil {
			return err
		}
	}
	if dynamicJSON.Valid {
		if err := unmarshalJSON(dynamicJSON.String, &profile.DynamicContext); err != nil {
			return err
		}
	}
	if patternsJSON.Valid {
		if err := unmarshalJSON(patternsJSON.String, &profile.SearchPatterns); err != nil {
			return err
		}
	}
	if typesJSON.Valid {
		if err := unmarshalJSON(typesJSON.String, &profile.PreferredTypes); err != nil {
			return err
		}
	}
	if resourcesJSON.Valid {
		if err := unmarshalJSON(resourcesJSON.String, &profile.TopResources); err != nil {
			return err
		}
	}
	if statsJSON.Valid {
		if err := unmarshalJSON(statsJSON.String, &profile.Stats); err != nil {
			return err
		}
	}
	return nil
}
