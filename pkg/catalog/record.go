package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Keys owned by the record itself; manifest fields never override them
const (
	keyID      = "_id"
	keyEnabled = "enabled"
	keyUsers   = "users"
)

var reservedKeys = []string{keyID, keyEnabled, keyUsers, "id", "server.js", "client.js"}

// Record is the persistent catalog entry of a plugin.
// It serializes as a flat document: {"_id":..., "enabled":..., "users":[...], <fields>}.
type Record struct {
	ID      string
	Enabled bool
	Users   []string
	Fields  map[string]interface{}
}

// NewRecord builds an enabled record with no users from manifest fields.
// Reserved keys and code payload are dropped from fields.
func NewRecord(id string, fields map[string]interface{}) Record {
	return Record{
		ID:      id,
		Enabled: true,
		Users:   []string{},
		Fields:  cleanFields(fields),
	}
}

// Clone returns a deep enough copy for callers to mutate safely
func (r Record) Clone() Record {
	out := Record{ID: r.ID, Enabled: r.Enabled}
	out.Users = append([]string{}, r.Users...)
	out.Fields = make(map[string]interface{}, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}

// MarshalJSON flattens the record into a single document
func (r Record) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(r.Fields)+3)
	for k, v := range r.Fields {
		doc[k] = v
	}
	users := r.Users
	if users == nil {
		users = []string{}
	}
	doc[keyID] = r.ID
	doc[keyEnabled] = r.Enabled
	doc[keyUsers] = users
	return json.Marshal(doc)
}

// UnmarshalJSON reads a flat document back into a record
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return err
	}

	id, ok := doc[keyID].(string)
	if !ok || id == "" {
		return fmt.Errorf("catalog record without %s", keyID)
	}

	out := Record{ID: id, Enabled: true, Users: []string{}}
	if enabled, ok := doc[keyEnabled].(bool); ok {
		out.Enabled = enabled
	}
	if users, ok := doc[keyUsers].([]interface{}); ok {
		for _, u := range users {
			if s, ok := u.(string); ok {
				out.Users = append(out.Users, s)
			}
		}
	}
	out.Fields = cleanFields(doc)

	*r = out
	return nil
}

func cleanFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, k := range reservedKeys {
		delete(out, k)
	}
	return out
}
