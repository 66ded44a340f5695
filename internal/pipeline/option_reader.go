package pipeline

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

const (
	optionTagNameConstant              = "mapstructure"
	optionDecodeErrorTemplateConstant  = "invalid options for %s step: %w"
	optionIntegerErrorTemplateConstant = "%v is not an integer"
)

// stepOptions is the union of the "with" keys every step understands. Keys match case-insensitively
// and pointer fields distinguish an omitted key from a zero value.
type stepOptions struct {
	DaysBack        *int     `mapstructure:"days_back"`
	MaxResults      int      `mapstructure:"max_results"`
	Categories      []string `mapstructure:"categories"`
	MinScore        *float64 `mapstructure:"min_score"`
	OutputDirectory string   `mapstructure:"output_dir"`
	Enabled         *bool    `mapstructure:"enabled"`
	RequirePublish  *bool    `mapstructure:"require_publish"`
}

func decodeStepOptions(step StepConfiguration) (stepOptions, error) {
	var decoded stepOptions
	if len(step.Options) == 0 {
		return decoded, nil
	}
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: optionTagNameConstant,
		Result:  &decoded,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(stepListSeparatorConstant),
			parseScalarStringHook,
			rejectFractionalIntegerHook,
		),
	})
	if decoderError != nil {
		return stepOptions{}, decoderError
	}
	if decodeError := decoder.Decode(step.Options); decodeError != nil {
		return stepOptions{}, fmt.Errorf(optionDecodeErrorTemplateConstant, step.Operation, decodeError)
	}

	decoded.OutputDirectory = strings.TrimSpace(decoded.OutputDirectory)
	categories := make([]string, 0, len(decoded.Categories))
	for _, category := range decoded.Categories {
		if trimmed := strings.TrimSpace(category); len(trimmed) > 0 {
			categories = append(categories, trimmed)
		}
	}
	if len(categories) > 0 {
		decoded.Categories = categories
	} else {
		decoded.Categories = nil
	}
	return decoded, nil
}

// parseScalarStringHook accepts quoted numbers and booleans, as environment overrides deliver them.
func parseScalarStringHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	text := strings.TrimSpace(data.(string))
	switch to.Kind() {
	case reflect.Bool:
		return strconv.ParseBool(text)
	case reflect.Int:
		return strconv.Atoi(text)
	case reflect.Float64:
		return strconv.ParseFloat(text, 64)
	default:
		return data, nil
	}
}

func rejectFractionalIntegerHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Int || from.Kind() != reflect.Float64 {
		return data, nil
	}
	number := data.(float64)
	if number != math.Trunc(number) {
		return nil, fmt.Errorf(optionIntegerErrorTemplateConstant, number)
	}
	return int(number), nil
}
