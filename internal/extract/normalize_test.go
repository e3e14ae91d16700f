package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "provider and date prefix stripped, doubled title collapsed",
			in:   "연합뉴스/2024-01-01 제목 제목",
			want: "제목",
		},
		{
			name: "provider prefix with space",
			in:   "뉴시스 금리 동결 전망",
			want: "금리 동결 전망",
		},
		{
			name: "whitespace runs collapsed",
			in:   "  반도체   수출    회복세  ",
			want: "반도체 수출 회복세",
		},
		{
			name: "doubled title without prefix",
			in:   "증시 급등 증시 급등",
			want: "증시 급등",
		},
		{
			name: "plain title untouched",
			in:   "환율 하락 마감",
			want: "환율 하락 마감",
		},
		{
			name: "unknown provider kept",
			in:   "어딘가닷컴/2024-01-01 제목",
			want: "어딘가닷컴/2024-01-01 제목",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, NormalizeTitle(tc.in))
		})
	}
}

func TestParseDateToken(t *testing.T) {
	t.Parallel()

	fallback := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	got := ParseDateToken("연합뉴스 2024-03-15 어떤 제목", fallback)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)

	require.Equal(t, fallback, ParseDateToken("날짜 없는 제목", fallback))
	require.Equal(t, fallback, ParseDateToken("2024-13-45 불가능한 날짜", fallback))
}
