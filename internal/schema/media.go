package schema

import "fmt"

// anthropicImageBlockToInputImagePart converts a Claude base64 image
// content block into an OpenAI Responses input_image part. It returns
// (nil, false) for anything that isn't a base64-sourced image.
func anthropicImageBlockToInputImagePart(block map[string]any) (map[string]any, bool) {
	source, ok := block["source"].(map[string]any)
	if !ok {
		return nil, false
	}

	if sourceType, _ := source["type"].(string); sourceType != "base64" {
		return nil, false
	}

	mediaType, _ := source["media_type"].(string)
	if mediaType == "" {
		mediaType = "image/png"
	}

	data, ok := source["data"].(string)
	if !ok {
		return nil, false
	}

	return map[string]any{
		"type":      "input_image",
		"image_url": fmt.Sprintf("data:%s;base64,%s", mediaType, data),
	}, true
}

// anthropicDocumentBlockToInputFilePart converts a Claude base64
// document content block into an OpenAI Responses input_file part.
func anthropicDocumentBlockToInputFilePart(block map[string]any) (map[string]any, bool) {
	source, ok := block["source"].(map[string]any)
	if !ok {
		return nil, false
	}

	if sourceType, _ := source["type"].(string); sourceType != "base64" {
		return nil, false
	}

	mediaType, _ := source["media_type"].(string)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	data, ok := source["data"].(string)
	if !ok {
		return nil, false
	}

	return map[string]any{
		"type":     "input_file",
		"file_url": fmt.Sprintf("data:%s;base64,%s", mediaType, data),
	}, true
}
