package builtin

import "coral-agents/internal/domain"

// payloadSchemas are the JSON Schemas each builtin agent checks message.payload against.
var payloadSchemas = map[domain.Capability]string{
	domain.CapabilityPromptRefine: `{
		"type": "object",
		"required": ["userRequest"],
		"properties": {
			"userRequest": {"type": "string", "minLength": 1},
			"context": {
				"type": "object",
				"properties": {
					"code": {"type": "string"},
					"filePath": {"type": "string"},
					"fileType": {"type": "string"},
					"framework": {"type": "string"},
					"metadata": {"type": "object"}
				}
			}
		}
	}`,
	domain.CapabilityUIGen: `{
		"type": "object",
		"required": ["prompt"],
		"properties": {
			"prompt": {"type": "string", "minLength": 1},
			"metadata": {"type": "object"}
		}
	}`,
	domain.CapabilityErrorFlag: `{
		"type": "object",
		"required": ["code"],
		"properties": {
			"code": {"type": "string", "minLength": 1},
			"filePath": {"type": "string"}
		}
	}`,
	domain.CapabilityCodeFix: `{
		"type": "object",
		"required": ["code", "errors"],
		"properties": {
			"filePath": {"type": "string"},
			"code": {"type": "string", "minLength": 1},
			"errors": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["line", "message"],
					"properties": {
						"line": {"type": "integer", "minimum": 0},
						"column": {"type": "integer"},
						"severity": {"enum": ["error", "warning", "info"]},
						"message": {"type": "string"},
						"type": {"type": "string"},
						"suggestion": {"type": "string"}
					}
				}
			}
		}
	}`,
}
