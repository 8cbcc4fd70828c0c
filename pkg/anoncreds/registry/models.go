package registry

// RegistrationState is the lifecycle state reported by a registration backend
type RegistrationState string

const (
	RegistrationStateFinished RegistrationState = "finished"
	RegistrationStateWait     RegistrationState = "wait"
	RegistrationStateFailed   RegistrationState = "failed"
)

type Schema struct {
	Id        string   `json:"id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Version   string   `json:"version,omitempty"`
	AttrNames []string `json:"attrNames,omitempty"`
	IssuerId  string   `json:"issuerId,omitempty"`
}

type CredentialDefinition struct {
	Id       string                 `json:"id,omitempty"`
	Tag      string                 `json:"tag,omitempty"`
	SchemaId string                 `json:"schemaId,omitempty"`
	IssuerId string                 `json:"issuerId,omitempty"`
	Value    map[string]interface{} `json:"value,omitempty"`
	// SupportsRevocation indicates the definition carries a revocation key
	SupportsRevocation bool `json:"supportsRevocation,omitempty"`
}

// RevocationRegistryDefinitionValue holds the registry parameters published
// alongside the definition
type RevocationRegistryDefinitionValue struct {
	MaxCredNum    int                    `json:"maxCredNum"`
	PublicKeys    map[string]interface{} `json:"publicKeys,omitempty"`
	TailsHash     string                 `json:"tailsHash,omitempty"`
	TailsLocation string                 `json:"tailsLocation,omitempty"`
}

// RevocationRegistryDefinition is the public, immutable definition of one
// revocation registry
type RevocationRegistryDefinition struct {
	Id           string                            `json:"id,omitempty"`
	IssuerId     string                            `json:"issuerId,omitempty"`
	RevocDefType string                            `json:"revocDefType,omitempty"` // "CL_ACCUM"
	CredDefId    string                            `json:"credDefId,omitempty"`
	Tag          string                            `json:"tag,omitempty"`
	Value        RevocationRegistryDefinitionValue `json:"value"`
}

// RevocationStatusList is the published mutable state of one registry
type RevocationStatusList struct {
	RevRegDefId        string `json:"revRegDefId,omitempty"`
	IssuerId           string `json:"issuerId,omitempty"`
	RevocationList     []int  `json:"revocationList"`
	CurrentAccumulator string `json:"currentAccumulator,omitempty"`
	Timestamp          int64  `json:"timestamp,omitempty"`
}

type RegisterSchemaOptions struct {
	Schema  Schema
	Options map[string]interface{}
}

type RegisterSchemaResult struct {
	State    RegistrationState
	Schema   Schema
	SchemaId string
	Reason   string
}

type RegisterCredentialDefinitionOptions struct {
	CredentialDefinition CredentialDefinition
	Options              map[string]interface{}
}

type RegisterCredentialDefinitionResult struct {
	State                  RegistrationState
	CredentialDefinition   CredentialDefinition
	CredentialDefinitionId string
	Reason                 string
}

type RegisterRevocationRegistryDefinitionOptions struct {
	RevocationRegistryDefinition RevocationRegistryDefinition
	Options                      map[string]interface{}
}

type RegisterRevocationRegistryDefinitionResult struct {
	State RegistrationState
	// JobId identifies an in-flight registration when State is wait; the
	// caller finishes the record once the permanent id is known
	JobId                          string
	RevocationRegistryDefinitionId string
	RevocationRegistryDefinition   RevocationRegistryDefinition
	Reason                         string
}

type RegisterRevocationStatusListOptions struct {
	RevocationStatusList RevocationStatusList
	Options              map[string]interface{}
}

type RegisterRevocationStatusListResult struct {
	State                RegistrationState
	RevocationStatusList RevocationStatusList
	Reason               string
}

type UpdateRevocationStatusListOptions struct {
	RevocationStatusList RevocationStatusList
	Options              map[string]interface{}
}

type UpdateRevocationStatusListResult struct {
	State                RegistrationState
	RevocationStatusList RevocationStatusList
	Reason               string
}
