package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"session-memory/internal/domain"
)

type fakeDynamo struct {
	pages    []*dynamodb.QueryOutput
	queryErr error
	calls    int
	inputs   []dynamodb.QueryInput
	onQuery  func()
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.inputs = append(f.inputs, *in)
	if f.onQuery != nil {
		f.onQuery()
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.calls >= len(f.pages) {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.pages[f.calls]
	f.calls++
	return out, nil
}

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "memory-table")
	require.NoError(t, err)
	return c
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "memory-table")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestQuerySession_BuildsFilteredQuery(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	_, err := c.QuerySession(context.Background(), "SESSION#s1")
	require.NoError(t, err)
	require.Len(t, db.inputs, 1)

	in := db.inputs[0]
	require.Equal(t, "memory-table", *in.TableName)
	require.Equal(t, "#pk = :pk", *in.KeyConditionExpression)
	require.Equal(t, "#deleted = :deleted", *in.FilterExpression)
	require.Equal(t, map[string]string{"#pk": "pk", "#deleted": "is_deleted"}, in.ExpressionAttributeNames)
	require.Equal(t, "SESSION#s1", in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value)
	require.False(t, in.ExpressionAttributeValues[":deleted"].(*types.AttributeValueMemberBOOL).Value)
	require.Nil(t, in.ExclusiveStartKey)
}

func TestQuerySession_DecodesAndClassifiesRows(t *testing.T) {
	db := &fakeDynamo{pages: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{
			{
				"pk":         s("SESSION#s1"),
				"is_deleted": &types.AttributeValueMemberBOOL{Value: false},
				"title":      s("chat"),
				"turns":      &types.AttributeValueMemberN{Value: "3"},
			},
			{
				"pk":   s("SESSION#s1"),
				"sk":   s("METADATA"),
				"tags": &types.AttributeValueMemberSS{Value: []string{"a", "b"}},
			},
			{
				"pk": s("SESSION#s1"),
				"message": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
					"role":    s("user"),
					"content": s("hi"),
				}},
			},
			{
				"pk":   s("SESSION#s1"),
				"kind": s("Metadata"),
				"note": &types.AttributeValueMemberNULL{Value: true},
			},
		},
	}}}
	c := mustNewClient(t, db)

	items, err := c.QuerySession(context.Background(), "SESSION#s1")
	require.NoError(t, err)
	require.Len(t, items, 4)

	require.Equal(t, domain.RowKindSession, items[0].Kind)
	require.False(t, items[0].Tagged)
	require.Equal(t, "chat", items[0].Attributes["title"])
	require.Equal(t, json.Number("3"), items[0].Attributes["turns"])
	require.Equal(t, false, items[0].Attributes["is_deleted"])

	require.Equal(t, domain.RowKindMetadata, items[1].Kind)
	require.Equal(t, []string{"a", "b"}, items[1].Attributes["tags"])

	require.Equal(t, domain.RowKindMessage, items[2].Kind)
	msg, ok := items[2].Message()
	require.True(t, ok)
	require.Equal(t, map[string]any{"role": "user", "content": "hi"}, msg)

	require.Equal(t, domain.RowKindMetadata, items[3].Kind)
	require.True(t, items[3].Tagged)
	require.Contains(t, items[3].Attributes, "note")
	require.Nil(t, items[3].Attributes["note"])
}

func TestQuerySession_ExplicitKindWinsOverMessageField(t *testing.T) {
	db := &fakeDynamo{pages: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{
			{"pk": s("SESSION#s1"), "kind": s("session"), "message": s("pinned")},
		},
	}}}
	c := mustNewClient(t, db)

	items, err := c.QuerySession(context.Background(), "SESSION#s1")
	require.NoError(t, err)
	require.Equal(t, domain.RowKindSession, items[0].Kind)
	require.True(t, items[0].Tagged)
}

func TestQuerySession_FollowsLastEvaluatedKey(t *testing.T) {
	lastKey := map[string]types.AttributeValue{"pk": s("SESSION#s1"), "sk": s("MSG#1")}
	db := &fakeDynamo{pages: []*dynamodb.QueryOutput{
		{LastEvaluatedKey: lastKey},
		{Items: []map[string]types.AttributeValue{{"pk": s("SESSION#s1"), "title": s("chat")}}},
	}}
	c := mustNewClient(t, db)

	items, err := c.QuerySession(context.Background(), "SESSION#s1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Len(t, db.inputs, 2)
	require.Equal(t, lastKey, db.inputs[1].ExclusiveStartKey)
}

func TestQuerySession_StopsPagingWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	db := &fakeDynamo{
		pages: []*dynamodb.QueryOutput{
			{LastEvaluatedKey: map[string]types.AttributeValue{"pk": s("SESSION#s1")}},
			{Items: []map[string]types.AttributeValue{{"pk": s("SESSION#s1")}}},
		},
		onQuery: cancel,
	}
	c := mustNewClient(t, db)

	_, err := c.QuerySession(ctx, "SESSION#s1")
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, db.inputs, 1)
}

func TestQuerySession_EmptyResult(t *testing.T) {
	db := &fakeDynamo{pages: []*dynamodb.QueryOutput{{}}}
	c := mustNewClient(t, db)

	items, err := c.QuerySession(context.Background(), "SESSION#s1")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestQuerySession_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")}
	c := mustNewClient(t, db)

	_, err := c.QuerySession(context.Background(), "SESSION#s1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "QuerySession")
	require.Contains(t, err.Error(), "ResourceNotFoundException")
}

func TestQuerySession_MalformedRows(t *testing.T) {
	cases := []struct {
		name string
		item map[string]types.AttributeValue
		want string
	}{
		{name: "bad number", item: map[string]types.AttributeValue{"turns": &types.AttributeValueMemberN{Value: "abc"}}, want: "invalid number"},
		{name: "non-json number", item: map[string]types.AttributeValue{"score": &types.AttributeValueMemberN{Value: "NaN"}}, want: "invalid number"},
		{name: "nested bad number", item: map[string]types.AttributeValue{"message": &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberN{Value: "x"}}}}, want: "message"},
		{name: "unknown kind", item: map[string]types.AttributeValue{"kind": s("summary")}, want: "unknown value"},
		{name: "non-string kind", item: map[string]types.AttributeValue{"kind": &types.AttributeValueMemberBOOL{Value: true}}, want: "not a string"},
		{name: "nil value", item: map[string]types.AttributeValue{"title": nil}, want: "nil attribute value"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := &fakeDynamo{pages: []*dynamodb.QueryOutput{{Items: []map[string]types.AttributeValue{tc.item}}}}
			c := mustNewClient(t, db)

			_, err := c.QuerySession(context.Background(), "SESSION#s1")
			require.Error(t, err)
			require.Contains(t, err.Error(), "unmarshal")
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDecodeValue_NumberSetAndBinary(t *testing.T) {
	v, err := decodeValue(&types.AttributeValueMemberNS{Value: []string{"1", "2.5"}})
	require.NoError(t, err)
	require.Equal(t, []any{json.Number("1"), json.Number("2.5")}, v)

	v, err = decodeValue(&types.AttributeValueMemberB{Value: []byte("raw")})
	require.NoError(t, err)
	require.Equal(t, []byte("raw"), v)

	v, err = decodeValue(&types.AttributeValueMemberBS{Value: [][]byte{[]byte("x")}})
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("x")}, v)
}
