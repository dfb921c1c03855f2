package feud

import "github.com/google/uuid"

const (
	// DefaultStateKey is the storage key holding the game state
	DefaultStateKey = "chungSucGameState"

	// DefaultPreferencesKey is the storage key holding admin preferences
	DefaultPreferencesKey = "chungSucAdminPrefs"

	// DefaultTimerSeconds is the sudden-death countdown when a question sets no limit
	DefaultTimerSeconds = 30
)

// DefaultState returns the seed show used on first start and on reset.
func DefaultState() *GameState {
	return &GameState{
		ProgramName:  "CHUNG SỨC",
		ProgramTheme: "Giải Mã Phái Đẹp",
		Teams: []Team{
			{ID: "team1", Name: "Đội 1", Members: []string{"Đội trưởng 1", "Thành viên 2", "Thành viên 3", "Thành viên 4"}},
			{ID: "team2", Name: "Đội 2", Members: []string{"Đội trưởng 2", "Thành viên 2", "Thành viên 3", "Thành viên 4"}},
		},
		Questions: []Question{
			{
				ID:         "q1",
				Text:       "Đâu là món quà 8/3 mà chị em phụ nữ mong muốn nhận được nhất?",
				Round:      1,
				Multiplier: 1,
				Answers: []Answer{
					{ID: "a1", Text: "Hoa tươi", Points: 35},
					{ID: "a2", Text: "Trang sức", Points: 25},
					{ID: "a3", Text: "Mỹ phẩm", Points: 20},
					{ID: "a4", Text: "Tiền mặt / Chuyển khoản", Points: 15},
					{ID: "a5", Text: "Đồ công nghệ", Points: 5},
				},
			},
			{
				ID:         "q2",
				Text:       "Đặc điểm nào ở nam giới thu hút phái đẹp nhất từ cái nhìn đầu tiên?",
				Round:      1,
				Multiplier: 1,
				Answers: []Answer{
					{ID: "b1", Text: "Nụ cười", Points: 40},
					{ID: "b2", Text: "Ánh mắt", Points: 30},
					{ID: "b3", Text: "Sự gọn gàng, sạch sẽ", Points: 15},
					{ID: "b4", Text: "Giọng nói", Points: 10},
					{ID: "b5", Text: "Chiều cao", Points: 5},
				},
			},
		},
		TimerDuration: DefaultTimerSeconds,
		Settings: Settings{
			EnableQuestionZoom:      true,
			QuestionZoomIntensity:   0.5,
			EnableSoundEffects:      true,
			SoundVolume:             0.7,
			EnableScoreAnimations:   true,
			ScoreAnimationIntensity: 0.5,
		},
	}
}

// NewQuestion builds the placeholder an admin gets from "add question":
// fresh ids and a single seed answer, ready for editing.
func NewQuestion() Question {
	return Question{
		ID:         "q-" + uuid.NewString(),
		Text:       "Câu hỏi mới",
		Round:      1,
		Multiplier: 1,
		Answers: []Answer{
			{ID: "a-" + uuid.NewString(), Text: "Đáp án 1", Points: 10},
		},
	}
}
