package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/codeofclans/internal/service"
)

// RewardsHandler serves the daily check-in endpoints.
type RewardsHandler struct {
	rewards *service.RewardService
	logger  *slog.Logger
}

func NewRewardsHandler(rewards *service.RewardService, logger *slog.Logger) *RewardsHandler {
	return &RewardsHandler{rewards: rewards, logger: logger}
}

type checkInResponse struct {
	Message   string       `json:"message"`
	CheckIn   *CheckInJSON `json:"check_in"`
	XPEarned  int          `json:"xp_earned"`
	TotalXP   int          `json:"total_xp"`
	StreakDay int          `json:"streak_day"`
}

// HandleCheckIn records today's check-in.
//
// HTTP: POST /api/rewards/check-in
// Response: 201 Created, or 400 if the caller already checked in today.
func (h *RewardsHandler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}

	res, err := h.rewards.CheckIn(r.Context(), a.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkInResponse{
		Message:   res.Message(),
		CheckIn:   newCheckInJSON(res.CheckIn),
		XPEarned:  res.XPEarned,
		TotalXP:   res.TotalXP,
		StreakDay: res.StreakDay,
	})
}

type statusResponse struct {
	CheckedInToday bool          `json:"checked_in_today"`
	CurrentStreak  int           `json:"current_streak"`
	TodayCheckIn   *CheckInJSON  `json:"today_checkin"`
	RecentCheckIns []CheckInJSON `json:"recent_checkins"`
	DailyRewards   map[int]int   `json:"daily_rewards"`
}

// HandleStatus reports the caller's streak and the reward table.
//
// HTTP: GET /api/rewards/check-in
func (h *RewardsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}

	st, err := h.rewards.Status(r.Context(), a.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	recent := make([]CheckInJSON, 0, len(st.Recent))
	for i := range st.Recent {
		recent = append(recent, *newCheckInJSON(&st.Recent[i]))
	}
	writeJSON(w, http.StatusOK, statusResponse{
		CheckedInToday: st.CheckedInToday,
		CurrentStreak:  st.CurrentStreak,
		TodayCheckIn:   newCheckInJSON(st.TodayCheckIn),
		RecentCheckIns: recent,
		DailyRewards:   service.DailyRewards,
	})
}
