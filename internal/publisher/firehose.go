package publisher

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/firehose/types"
)

// FirehoseConfig configures the Kinesis Data Firehose-backed
// DeliveryStream. Endpoint is only set against localstack-style test
// backends.
type FirehoseConfig struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// FirehoseStream is the production DeliveryStream, backed by Amazon
// Kinesis Data Firehose's PutRecordBatch — an exact match for
// "batched-delivery stream": up to 500 records / 4 MiB per call / 1 MiB per
// record, with a per-record PutRecordBatchResponseEntry{ErrorCode,
// ErrorMessage} or record id on success.
type FirehoseStream struct {
	client *firehose.Client
}

func NewFirehoseStream(ctx context.Context, cfg FirehoseConfig) (*FirehoseStream, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("publisher: load AWS config: %w", err)
	}

	client := firehose.NewFromConfig(awsCfg, func(o *firehose.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &FirehoseStream{client: client}, nil
}

// PutBatch implements DeliveryStream by translating records into Firehose
// records and mapping each PutRecordBatchResponseEntry back onto
// PerRecordResult. A Firehose-reported ErrorCode of
// "ServiceUnavailableException" is treated as retryable; anything else
// (e.g. malformed record) is not.
func (f *FirehoseStream) PutBatch(ctx context.Context, streamName string, records [][]byte) ([]PerRecordResult, error) {
	entries := make([]types.Record, len(records))
	for i, r := range records {
		entries[i] = types.Record{Data: r}
	}

	out, err := f.client.PutRecordBatch(ctx, &firehose.PutRecordBatchInput{
		DeliveryStreamName: aws.String(streamName),
		Records:            entries,
	})
	if err != nil {
		return nil, fmt.Errorf("publisher: PutRecordBatch: %w", err)
	}

	results := make([]PerRecordResult, len(out.RequestResponses))
	for i, resp := range out.RequestResponses {
		if resp.ErrorCode == nil {
			results[i] = PerRecordResult{OK: true}
			continue
		}
		results[i] = PerRecordResult{
			ErrorCode: aws.ToString(resp.ErrorCode),
			Retryable: aws.ToString(resp.ErrorCode) == "ServiceUnavailableException",
		}
	}
	return results, nil
}
