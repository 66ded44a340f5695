package utils_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/paperdigest/internal/utils"
)

const (
	testLoggerFactorySubtestTemplateConstant = "%d_%s"
	testInvalidLogLevelConstant              = "verbose"
	testInvalidLogFormatConstant             = "xml"
)

func TestLoggerFactoryCreateLogger(testInstance *testing.T) {
	testCases := []struct {
		name               string
		requestedLogLevel  utils.LogLevel
		requestedLogFormat utils.LogFormat
		expectError        bool
	}{
		{name: "debug_structured", requestedLogLevel: utils.LogLevelDebug, requestedLogFormat: utils.LogFormatStructured},
		{name: "info_console", requestedLogLevel: utils.LogLevelInfo, requestedLogFormat: utils.LogFormatConsole},
		{name: "blank_values_default", requestedLogLevel: "", requestedLogFormat: ""},
		{name: "mixed_case_values", requestedLogLevel: "WARN", requestedLogFormat: " Console "},
		{name: "unsupported_level", requestedLogLevel: utils.LogLevel(testInvalidLogLevelConstant), requestedLogFormat: utils.LogFormatStructured, expectError: true},
		{name: "unsupported_format", requestedLogLevel: utils.LogLevelInfo, requestedLogFormat: utils.LogFormat(testInvalidLogFormatConstant), expectError: true},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testLoggerFactorySubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			logger, creationError := utils.NewLoggerFactory().CreateLogger(testCase.requestedLogLevel, testCase.requestedLogFormat)
			if testCase.expectError {
				require.Error(testInstance, creationError)
				require.Nil(testInstance, logger)
				return
			}
			require.NoError(testInstance, creationError)
			require.NotNil(testInstance, logger)
		})
	}
}
