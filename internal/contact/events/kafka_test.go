package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"contactsvc/internal/contact/metrics"
	"contactsvc/internal/contact/models"
	"contactsvc/pkg/platform/circuit"
)

type fakeProducer struct {
	mu      sync.Mutex
	err     error
	records []*kgo.Record
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

type KafkaPublisherSuite struct {
	suite.Suite
	producer  *fakeProducer
	metrics   *metrics.Metrics
	publisher *KafkaPublisher
}

func TestKafkaPublisherSuite(t *testing.T) {
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupTest() {
	s.producer = &fakeProducer{}
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.publisher = NewKafkaPublisher(s.producer, "contact-events",
		WithKafkaMetrics(s.metrics),
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))),
	)
}

func (s *KafkaPublisherSuite) TestRecordsKeyedByPrimary() {
	err := s.publisher.Publish(context.Background(), models.Outcome{
		Kind: models.OutcomeMerged, PrimaryID: 12, CreatedID: 15, Demoted: []int64{13},
	})
	s.Require().NoError(err)
	s.Require().Len(s.producer.records, 2)

	for _, rec := range s.producer.records {
		s.Equal("contact-events", rec.Topic)
		s.Equal("12", string(rec.Key))
	}
	s.Equal("event_type", s.producer.records[0].Headers[0].Key)
	s.Equal(string(TypeMerged), string(s.producer.records[0].Headers[0].Value))

	var decoded Event
	s.Require().NoError(json.Unmarshal(s.producer.records[1].Value, &decoded))
	s.Equal(TypeLinked, decoded.Type)
	s.Equal(int64(15), decoded.ContactID)
	s.Equal(SchemaVersion, decoded.SchemaVersion)
}

func (s *KafkaPublisherSuite) TestUnchangedPublishesNothing() {
	s.Require().NoError(s.publisher.Publish(context.Background(), models.Outcome{Kind: models.OutcomeUnchanged, PrimaryID: 1}))
	s.Empty(s.producer.records)
}

func (s *KafkaPublisherSuite) TestFailureCountsAndOpensCircuit() {
	s.producer.err = errors.New("broker down")
	ctx := context.Background()
	created := models.Outcome{Kind: models.OutcomeCreated, PrimaryID: 1, CreatedID: 1}

	err := s.publisher.Publish(ctx, created)
	s.Require().Error(err)
	s.NotErrorIs(err, ErrCircuitOpen)

	err = s.publisher.Publish(ctx, created)
	s.ErrorIs(err, ErrCircuitOpen)
	s.True(s.publisher.breaker.IsOpen())
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.PublishFailures.WithLabelValues(string(TypeCreated))))

	s.producer.err = nil
	s.Require().NoError(s.publisher.Publish(ctx, created))
	s.False(s.publisher.breaker.IsOpen())
}
