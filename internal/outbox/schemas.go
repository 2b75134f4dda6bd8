package outbox

const entryLoggedSchema = `{
  "type": "object",
  "title": "EntryLogged",
  "properties": {
    "entry_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "entry_type": {"type": "string"},
    "confidence": {"type": "integer"},
    "raw_text": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "source": {"type": "string"},
    "version": {"type": "string"}
  },
  "required": ["entry_id", "tenant_id", "user_id", "entry_type", "confidence", "raw_text", "occurred_at", "source", "version"],
  "additionalProperties": false
}`

const entryStateChangedSchema = `{
  "type": "object",
  "title": "EntryStateChanged",
  "properties": {
    "entry_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "state": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "reason": {"type": "string"}
  },
  "required": ["entry_id", "tenant_id", "user_id", "state", "occurred_at"],
  "additionalProperties": false
}`
