//go:build integration

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"contactsvc/internal/contact/models"
	"contactsvc/pkg/testutil/containers"
)

type KafkaIntegrationSuite struct {
	suite.Suite
	kafka *containers.KafkaContainer
}

func TestKafkaIntegrationSuite(t *testing.T) {
	suite.Run(t, new(KafkaIntegrationSuite))
}

func (s *KafkaIntegrationSuite) SetupSuite() {
	s.kafka = containers.NewKafkaContainer(s.T())
}

func (s *KafkaIntegrationSuite) TestPublishedEventsAreConsumable() {
	const topic = "contact-events-it"
	client, err := NewKafkaClient([]string{s.kafka.Broker}, topic, "contactsvc-test")
	s.Require().NoError(err)
	defer client.Close()

	pub := NewKafkaPublisher(client, topic)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(pub.Publish(ctx, models.Outcome{Kind: models.OutcomeCreated, PrimaryID: 5, CreatedID: 5}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.kafka.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	var e Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &e))
	s.Equal(TypeCreated, e.Type)
	s.Equal(int64(5), e.PrimaryID)
	s.Equal("5", string(records[0].Key))
}
