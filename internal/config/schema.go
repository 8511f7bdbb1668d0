package config

// definitionSchema constrains the shape of rollops.yaml. Semantic rules that
// JSON Schema cannot express (plan reference format, URL scheme) live in
// Definition.Validate.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "platform", "rollout"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer"},
    "platform": {
      "type": "object",
      "required": ["baseUrl"],
      "additionalProperties": false,
      "properties": {
        "baseUrl": {"type": "string", "minLength": 1},
        "minActuatorVersion": {"type": "string"},
        "credential": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "source": {"type": "string", "enum": ["env", "keyring", "aws", "gcp"]},
            "env": {"type": "string"},
            "service": {"type": "string"},
            "account": {"type": "string"},
            "secretId": {"type": "string"},
            "region": {"type": "string"},
            "profile": {"type": "string"},
            "resource": {"type": "string"},
            "endpoint": {"type": "string"}
          }
        }
      }
    },
    "rollout": {
      "type": "object",
      "required": ["plan"],
      "additionalProperties": false,
      "properties": {
        "plan": {"type": "string", "minLength": 1},
        "target": {"type": "string"},
        "title": {"type": "string"},
        "reason": {"type": "string"},
        "pollInterval": {"type": "string"}
      }
    },
    "metrics": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "port": {"type": "integer", "minimum": 0, "maximum": 65535}
      }
    }
  }
}`
