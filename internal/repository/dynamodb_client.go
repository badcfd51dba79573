package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"session-memory/internal/domain"
)

const skMetadata = "METADATA"

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps a DynamoDB table holding session, metadata and message rows.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// QuerySession returns every row of the partition whose is_deleted flag is
// false, in the table's natural order. The filter runs server side, so pages
// may come back empty while LastEvaluatedKey is still set; all pages are read.
func (c *Client) QuerySession(ctx context.Context, pk string) ([]domain.Item, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		FilterExpression:       aws.String("#deleted = :deleted"),
		ExpressionAttributeNames: map[string]string{
			"#pk":      domain.AttrPK,
			"#deleted": domain.AttrIsDeleted,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":      &types.AttributeValueMemberS{Value: pk},
			":deleted": &types.AttributeValueMemberBOOL{Value: false},
		},
	}

	var items []domain.Item
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: QuerySession query: %w", err)
		}
		if out == nil {
			return nil, errors.New("repository: QuerySession: empty query output")
		}
		for _, raw := range out.Items {
			item, err := itemFromAttributes(raw)
			if err != nil {
				return nil, fmt.Errorf("repository: QuerySession unmarshal: %w", err)
			}
			items = append(items, item)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("repository: QuerySession: %w", err)
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// itemFromAttributes decodes a DynamoDB attribute map and classifies its row kind.
func itemFromAttributes(raw map[string]types.AttributeValue) (domain.Item, error) {
	attrs := make(map[string]any, len(raw))
	for name, av := range raw {
		v, err := decodeValue(av)
		if err != nil {
			return domain.Item{}, fmt.Errorf("attribute %q: %w", name, err)
		}
		attrs[name] = v
	}
	kind, tagged, err := classify(attrs)
	if err != nil {
		return domain.Item{}, err
	}
	return domain.Item{Kind: kind, Tagged: tagged, Attributes: attrs}, nil
}

// classify prefers an explicit kind attribute written by the producer and
// falls back to the structural rules used by rows that predate it. tagged
// reports whether the explicit attribute was present.
func classify(attrs map[string]any) (kind domain.RowKind, tagged bool, err error) {
	if v, ok := attrs[domain.AttrKind]; ok {
		s, ok := v.(string)
		if !ok {
			return "", false, fmt.Errorf("attribute %q is not a string", domain.AttrKind)
		}
		k := domain.RowKind(strings.ToLower(s))
		if !k.Valid() {
			return "", false, fmt.Errorf("attribute %q has unknown value %q", domain.AttrKind, s)
		}
		return k, true, nil
	}
	if _, ok := attrs[domain.AttrMessage]; ok {
		return domain.RowKindMessage, false, nil
	}
	if sk, ok := attrs[domain.AttrSK].(string); ok && sk == skMetadata {
		return domain.RowKindMetadata, false, nil
	}
	return domain.RowKindSession, false, nil
}

func decodeValue(av types.AttributeValue) (any, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		if !validNumber(v.Value) {
			return nil, fmt.Errorf("invalid number %q", v.Value)
		}
		return json.Number(v.Value), nil
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberB:
		return v.Value, nil
	case *types.AttributeValueMemberSS:
		return append([]string(nil), v.Value...), nil
	case *types.AttributeValueMemberNS:
		out := make([]any, 0, len(v.Value))
		for _, n := range v.Value {
			d, err := decodeValue(&types.AttributeValueMemberN{Value: n})
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	case *types.AttributeValueMemberBS:
		return append([][]byte(nil), v.Value...), nil
	case *types.AttributeValueMemberL:
		out := make([]any, 0, len(v.Value))
		for _, e := range v.Value {
			d, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	case *types.AttributeValueMemberM:
		out := make(map[string]any, len(v.Value))
		for k, e := range v.Value {
			d, err := decodeValue(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = d
		}
		return out, nil
	case nil:
		return nil, errors.New("nil attribute value")
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", av)
	}
}

// validNumber rejects values that would not round-trip as a JSON number.
func validNumber(n string) bool {
	if _, err := strconv.ParseFloat(n, 64); err != nil {
		return false
	}
	return json.Valid([]byte(n))
}
