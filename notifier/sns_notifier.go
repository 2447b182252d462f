package notifier

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/mtd-tools/arrivals-service/dlog"
	"github.com/mtd-tools/arrivals-service/model"
	"github.com/pkg/errors"
)

// SNSNotifier fans a tick's exposed values out to an SNS topic as a
// single JSON message, for automations that react to pushes rather than
// polling the presenter.
type SNSNotifier struct {
	Logger      *dlog.Logger
	SNSClient   snsiface.SNSAPI
	SNSTopicARN *string
}

type board struct {
	Arrivals []model.ExposedValue `json:"arrivals"`
}

func (n *SNSNotifier) Publish(values []model.ExposedValue) error {
	n.Logger.Debugf("Publish (%d values)", len(values))

	boardJSON, err := json.Marshal(board{Arrivals: values})
	if err != nil {
		return errors.Wrap(err, "cannot marshal arrivals board")
	}

	if _, err := n.SNSClient.Publish(&sns.PublishInput{
		Message:  aws.String(string(boardJSON)),
		TopicArn: n.SNSTopicARN,
	}); err != nil {
		return errors.Wrapf(err, "cannot publish message to SNS topic `%s`", *n.SNSTopicARN)
	}

	return nil
}
