package blockchain

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// CommandTopic is read by the chain relayer, which signs and submits the
// Flow transaction a command describes.
const CommandTopic = "blockchain.flow.commands"

type Authorizer struct {
	KmsResourceId        string `json:"kmsResourceId"`
	ResourceOwnerAddress string `json:"resourceOwnerAddress"`
}

// RelayerAuthorizer is the service account the relayer signs with.
func RelayerAuthorizer() Authorizer {
	return Authorizer{
		KmsResourceId:        viper.GetString("RELAYER_KMS_RESOURCE_NAME"),
		ResourceOwnerAddress: viper.GetString("RELAYER_AUTHORIZER_ADDR"),
	}
}

type Command struct {
	Id          string       `json:"id"`
	Type        string       `json:"type"`
	Payload     []any        `json:"payload"`
	Authorizers []Authorizer `json:"authorizers"`
	IssuedAt    time.Time    `json:"issuedAt"`
}

func (Command) GetEventTopicName() string {
	return CommandTopic
}

// NewCommand builds a command signed by the relayer account. Every command
// gets a fresh id the relayer deduplicates on.
func NewCommand(commandType string, payload ...any) Command {
	return Command{
		Id:          uuid.New().String(),
		Type:        commandType,
		Payload:     payload,
		Authorizers: []Authorizer{RelayerAuthorizer()},
		IssuedAt:    time.Now().UTC(),
	}
}
