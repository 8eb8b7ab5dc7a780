package state

import "encoding/json"

// The decoders below also accept the field names written by the web client
// (apiKeys, apiKey, isDefault, imagePreview). The current names win when both
// are present. Encoding always uses the current names.

func (c *Credential) UnmarshalJSON(data []byte) error {
	type alias Credential
	var aux struct {
		alias
		APIKey    *string `json:"apiKey"`
		IsDefault *bool   `json:"isDefault"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Credential(aux.alias)
	if c.Secret == "" && aux.APIKey != nil {
		c.Secret = *aux.APIKey
	}
	if !c.IsActive && aux.IsDefault != nil {
		c.IsActive = *aux.IsDefault
	}
	return nil
}

func (ps *ProviderSettings) UnmarshalJSON(data []byte) error {
	type alias ProviderSettings
	var aux struct {
		alias
		APIKeys []Credential `json:"apiKeys"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*ps = ProviderSettings(aux.alias)
	if len(ps.Credentials) == 0 && len(aux.APIKeys) > 0 {
		ps.Credentials = aux.APIKeys
	}
	return nil
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var aux struct {
		alias
		ImagePreview string `json:"imagePreview"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Message(aux.alias)
	if m.ImageData == "" {
		m.ImageData = aux.ImagePreview
	}
	return nil
}
