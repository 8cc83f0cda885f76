package evaluator

const responseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["job_index", "is_relevant", "match_score"],
    "properties": {
      "job_index": {"type": "integer", "minimum": 0},
      "is_relevant": {"type": "boolean"},
      "match_score": {"type": "number"},
      "matched_career": {"type": ["string", "null"]},
      "reason": {"type": ["string", "null"]},
      "required_skills": {"type": ["array", "null"], "items": {"type": "string"}},
      "skill_match": {"type": ["array", "null"], "items": {"type": "string"}}
    }
  }
}`
