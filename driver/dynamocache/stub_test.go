package dynamocache

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynStub is an in-memory DynamoAPI that understands the handful of
// expressions the client sends.
type dynStub struct {
	items map[string]map[string]types.AttributeValue

	getErr    error
	putErr    error
	scanErr   error
	updateErr error

	// casConflicts makes the next n value-conditioned updates fail.
	casConflicts int
	// unprocessed makes the next batch write hand back its last request.
	unprocessed int

	batchWriteSizes []int
	describeErrs    []error
	createErrs      []error
	describeHits    int
	createHits      int
	exists          bool
}

func newDynStub() *dynStub {
	return &dynStub{items: map[string]map[string]types.AttributeValue{}, exists: true}
}

func keyOf(m map[string]types.AttributeValue) string {
	return m["k"].(*types.AttributeValueMemberS).Value
}

func numAttr(m map[string]types.AttributeValue, name string) int64 {
	av, ok := m[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(av.Value, 10, 64)
	return n
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (d *dynStub) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if d.getErr != nil {
		return nil, d.getErr
	}
	item, ok := d.items[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (d *dynStub) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if d.putErr != nil {
		return nil, d.putErr
	}
	d.items[keyOf(in.Item)] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (d *dynStub) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if d.updateErr != nil {
		return nil, d.updateErr
	}
	key := keyOf(in.Key)
	item, exists := d.items[key]
	vals := in.ExpressionAttributeValues
	switch *in.UpdateExpression {
	case "SET ea = :ea":
		now := numAttr(vals, ":now")
		ea := numAttr(item, "ea")
		if !exists || (ea != 0 && ea <= now) {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item["ea"] = vals[":ea"]
	case "SET v = :next":
		if d.casConflicts > 0 {
			d.casConflicts--
			return nil, &types.ConditionalCheckFailedException{}
		}
		cur, _ := item["v"].(*types.AttributeValueMemberB)
		want := vals[":cur"].(*types.AttributeValueMemberB)
		if !exists || cur == nil || !bytes.Equal(cur.Value, want.Value) {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item["v"] = vals[":next"]
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (d *dynStub) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	key := keyOf(in.Key)
	item, ok := d.items[key]
	if in.ConditionExpression != nil && ok {
		if numAttr(item, "ea") != numAttr(in.ExpressionAttributeValues, ":ea") {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	delete(d.items, key)
	out := &dynamodb.DeleteItemOutput{}
	if ok && in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = item
	}
	return out, nil
}

func (d *dynStub) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	if d.getErr != nil {
		return nil, d.getErr
	}
	out := &dynamodb.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	for table, ka := range in.RequestItems {
		for _, k := range ka.Keys {
			if item, ok := d.items[keyOf(k)]; ok {
				out.Responses[table] = append(out.Responses[table], copyItem(item))
			}
		}
	}
	return out, nil
}

func (d *dynStub) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	out := &dynamodb.BatchWriteItemOutput{}
	for table, writes := range in.RequestItems {
		d.batchWriteSizes = append(d.batchWriteSizes, len(writes))
		if d.unprocessed > 0 && len(writes) > 0 {
			d.unprocessed--
			out.UnprocessedItems = map[string][]types.WriteRequest{table: writes[len(writes)-1:]}
			writes = writes[:len(writes)-1]
		}
		for _, w := range writes {
			switch {
			case w.PutRequest != nil:
				d.items[keyOf(w.PutRequest.Item)] = copyItem(w.PutRequest.Item)
			case w.DeleteRequest != nil:
				delete(d.items, keyOf(w.DeleteRequest.Key))
			}
		}
	}
	return out, nil
}

func (d *dynStub) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if d.scanErr != nil {
		return nil, d.scanErr
	}
	prefix := ""
	if p, ok := in.ExpressionAttributeValues[":p"].(*types.AttributeValueMemberS); ok {
		prefix = p.Value
	}
	out := &dynamodb.ScanOutput{}
	for key := range d.items {
		if strings.HasPrefix(key, prefix) {
			out.Items = append(out.Items, map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: key}})
		}
	}
	return out, nil
}

func (d *dynStub) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	d.createHits++
	if len(d.createErrs) > 0 {
		err := d.createErrs[0]
		d.createErrs = d.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	d.exists = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (d *dynStub) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	d.describeHits++
	if len(d.describeErrs) > 0 {
		err := d.describeErrs[0]
		d.describeErrs = d.describeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if !d.exists {
		return nil, &types.ResourceNotFoundException{}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}
