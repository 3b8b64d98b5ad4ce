package gemini

// --- Detection Prompt ---
// Closed vocabulary keeps detection cheap: the model may not transcribe
// anything at this stage.
const DetectionPrompt = `Look at this page image and determine which of these languages appear as readable text: Khmer, English.

Answer with exactly one word:
KHMER if only Khmer text is present.
ENGLISH if only English text is present.
BOTH if both Khmer and English text are present.
NONE if neither language is present (blank page, images only, or other languages).

Do not transcribe any text. Do not explain. Answer with the single word only.`

// --- Extraction Prompt ---
const ExtractionPrompt = `Extract all readable text from this image. Separate the extracted text into two sections with clear headers: 'English_Text:' and 'Khmer_Text:'. Only include text actually found in the image under each section. If a section is empty, just write 'None'.`

// Section labels the extraction parser splits on; they must stay in sync
// with the headers ExtractionPrompt demands.
const (
	EnglishLabel = "English_Text:"
	KhmerLabel   = "Khmer_Text:"
)
