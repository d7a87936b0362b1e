package behavior

import "github.com/ayusman/panoptes/internal/detector"

// MinKeypoints is the smallest keypoint set the classifier will inspect.
const MinKeypoints = detector.NumKeypoints

// aggressionRatio scales the torso width into the wrist-to-nose radius
// that counts as a raised guard.
const aggressionRatio = 0.3

// Classify maps one smoothed keypoint set to a raw label. Rules are
// evaluated in priority order and the first match wins.
func Classify(kp []detector.Point) Label {
	if len(kp) < MinKeypoints {
		return Neutral
	}

	nose := kp[detector.Nose]
	lw, rw := kp[detector.LeftWrist], kp[detector.RightWrist]

	if lw.Y < nose.Y && rw.Y < nose.Y {
		return HandsUp
	}

	torso := kp[detector.LeftShoulder].Distance(kp[detector.RightShoulder]) * 2
	if torso == 0 {
		torso = 1.0
	}
	radius := aggressionRatio * torso
	if lw.Distance(nose) < radius || rw.Distance(nose) < radius {
		return Agresion
	}

	return Neutral
}
