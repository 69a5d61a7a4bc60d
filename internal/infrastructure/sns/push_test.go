package sns

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublishAPI struct{ mock.Mock }

func (m *mockPublishAPI) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func TestSendPush_PublishesPlatformEnvelope(t *testing.T) {
	api := &mockPublishAPI{}
	var got *sns.PublishInput
	api.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(*sns.PublishInput) }).
		Return(&sns.PublishOutput{}, nil)

	s := &sender{client: api}
	err := s.SendPush(context.Background(), "arn:aws:sns:endpoint/1", PushMessage{
		Title: "Alice shared a new post",
		Body:  "Generics in practice",
		URL:   "https://app.example.com/posts/p1",
		Data:  map[string]string{"notificationId": "n1"},
	})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "arn:aws:sns:endpoint/1", *got.TargetArn)
	assert.Equal(t, "json", *got.MessageStructure)

	var envelope map[string]string
	require.NoError(t, json.Unmarshal([]byte(*got.Message), &envelope))
	assert.Equal(t, "Alice shared a new post", envelope["default"])

	var fcm struct {
		Notification map[string]string `json:"notification"`
		Data         map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(envelope["GCM"]), &fcm))
	assert.Equal(t, "Generics in practice", fcm.Notification["body"])
	assert.Equal(t, "https://app.example.com/posts/p1", fcm.Data["url"])
	assert.Equal(t, "n1", fcm.Data["notificationId"])
	assert.Contains(t, envelope["APNS"], `"aps"`)
}

func TestSendPush_DisabledEndpoint(t *testing.T) {
	api := &mockPublishAPI{}
	api.On("Publish", mock.Anything, mock.Anything).Return(nil, &types.EndpointDisabledException{})

	err := (&sender{client: api}).SendPush(context.Background(), "arn:1", PushMessage{Title: "t"})

	assert.ErrorIs(t, err, ErrEndpointDisabled)
}
