package detector

import (
	"fmt"
	"os"
	"strings"
)

// COCOLabels are the class names shipped with the stock YOLOv8 checkpoints.
var COCOLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// LoadLabels reads one class name per line. An empty path yields COCOLabels.
func LoadLabels(path string) ([]string, error) {
	if path == "" {
		return COCOLabels, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels file %s: %w", path, err)
	}

	var labels []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		labels = append(labels, strings.TrimSpace(line))
	}
	if len(labels) == 0 || labels[0] == "" {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}

	return labels, nil
}
