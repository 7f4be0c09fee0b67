package dynamo

const (
	valuePrefix = "KV#"
	valueSK     = "VALUE"
)

type dynamoValue struct {
	PK      string `dynamodbav:"PK"`
	SK      string `dynamodbav:"SK"`
	Value   string `dynamodbav:"Value"`
	Updated int64  `dynamodbav:"Updated"`
}

func valuePK(key string) string {
	return valuePrefix + key
}

func valueToDynamo(key, value string, updated int64) dynamoValue {
	return dynamoValue{
		PK:      valuePK(key),
		SK:      valueSK,
		Value:   value,
		Updated: updated,
	}
}
